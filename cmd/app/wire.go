//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/health-assistant/internal/bootstrap"
	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/internal/infra/config"
	httpiface "github.com/yanqian/health-assistant/internal/interface/http"
	"github.com/yanqian/health-assistant/internal/observability/metrics"
	"github.com/yanqian/health-assistant/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		metrics.New,
		providePipelineConfig,
		provideReinforceConfig,
		provideArtifactStore,
		provideDatasetStore,
		provideTokenizer,
		provideModels,
		provideSessionStore,
		provideConversationStore,
		provideSampleSource,
		provideValkeyClient,
		provideAnswerCache,
		provideJobQueue,
		provideRecorder,
		provideScheduler,
		healthbot.NewPipeline,
		healthbot.NewService,
		reinforce.NewService,
		wire.Bind(new(httpiface.ChatService), new(*healthbot.Service)),
		wire.Bind(new(httpiface.Trainer), new(*reinforce.Service)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
