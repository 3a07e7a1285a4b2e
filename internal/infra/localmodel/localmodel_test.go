package localmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

func TestEncoderIsDeterministic(t *testing.T) {
	enc := NewEncoder(64)
	texts := []string{"Malaria spreads through mosquito bites", "Malaria spreads through mosquito bites", "wash hands"}
	first, err := enc.Encode(context.Background(), texts)
	require.NoError(t, err)
	second, err := enc.Encode(context.Background(), texts)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first[0], 64)
	require.InDelta(t, 1.0, healthbot.CosineSimilarity(first[0], first[1]), 1e-9)
	require.Less(t, healthbot.CosineSimilarity(first[0], first[2]), 0.9)
	require.Equal(t, 384, NewEncoder(0).Dimension())
}

func TestEncoderSharedVocabularyIsCloser(t *testing.T) {
	enc := NewEncoder(256)
	vectors, err := enc.Encode(context.Background(), []string{
		"how is malaria transmitted",
		"malaria is transmitted by mosquitoes",
		"cholera outbreak water sanitation",
	})
	require.NoError(t, err)
	related := healthbot.CosineSimilarity(vectors[0], vectors[1])
	unrelated := healthbot.CosineSimilarity(vectors[0], vectors[2])
	require.Greater(t, related, unrelated)
}

func TestCrossEncoderOverlap(t *testing.T) {
	scores, err := NewCrossEncoder().Score(context.Background(), []healthbot.Pair{
		{Query: "How is malaria transmitted?", Passage: "Malaria is transmitted by infected mosquitoes."},
		{Query: "How is malaria transmitted?", Passage: "Drink clean water."},
		{Query: "", Passage: "anything"},
	})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0, 0}, scores)
}

func TestGeneratorExtractsRelevantSentences(t *testing.T) {
	prompt := healthbot.BuildPrompt("How is malaria transmitted?",
		"Malaria is a serious disease. It is transmitted by infected mosquitoes. Bed nets help prevent bites.")
	gen := NewGenerator()

	first, err := gen.Generate(context.Background(), prompt, healthbot.DefaultDecodeParams())
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), prompt, healthbot.DefaultDecodeParams())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, "Malaria is a serious disease. It is transmitted by infected mosquitoes.", first)
}

func TestGeneratorRespectsMaxLength(t *testing.T) {
	params := healthbot.DefaultDecodeParams()
	params.MaxLength = 3
	answer, err := NewGenerator().Generate(context.Background(),
		healthbot.BuildPrompt("fever", "Fever means your body temperature is high."), params)
	require.NoError(t, err)
	require.Equal(t, "Fever means your", answer)

	empty, err := NewGenerator().Generate(context.Background(), "no context here", params)
	require.NoError(t, err)
	require.Empty(t, empty)
}
