package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

const maxErrorBody = 512

// Options configures the model server client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	EmbeddingDim int
	Breaker      BreakerSettings
	HTTPClient   *http.Client
}

// Client talks to a model server exposing embed, rerank and generate endpoints.
type Client struct {
	baseURL    string
	dim        int
	httpClient *http.Client
	embedCB    *breaker
	rerankCB   *breaker
	generateCB *breaker
	logger     *slog.Logger
}

// NewClient constructs a Client.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("inference: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	logger = logger.With("component", "inference.client")
	return &Client{
		baseURL:    base,
		dim:        opts.EmbeddingDim,
		httpClient: httpClient,
		embedCB:    newBreaker("embed", opts.Breaker, logger),
		rerankCB:   newBreaker("rerank", opts.Breaker, logger),
		generateCB: newBreaker("generate", opts.Breaker, logger),
		logger:     logger,
	}, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Encode embeds texts with the sentence encoder.
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := c.embedCB.do(func() error {
		return c.post(ctx, "/embed", embedRequest{Inputs: texts}, &vectors)
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("inference: embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for _, v := range vectors {
		if c.dim > 0 && len(v) != c.dim {
			return nil, fmt.Errorf("inference: embed returned dimension %d, expected %d", len(v), c.dim)
		}
	}
	return vectors, nil
}

// Dimension reports the configured embedding size.
func (c *Client) Dimension() int {
	return c.dim
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score runs the cross-encoder. Pairs must share one query, which is how the
// pipeline calls it; scores are returned in input order.
func (c *Client) Score(ctx context.Context, pairs []healthbot.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	req := rerankRequest{Query: pairs[0].Query, Texts: make([]string, len(pairs))}
	for i, p := range pairs {
		if p.Query != req.Query {
			return nil, fmt.Errorf("inference: rerank pairs must share one query")
		}
		req.Texts[i] = p.Passage
	}
	var resp []rerankScore
	err := c.rerankCB.do(func() error {
		return c.post(ctx, "/rerank", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	if len(resp) != len(pairs) {
		return nil, fmt.Errorf("inference: rerank returned %d scores for %d pairs", len(resp), len(pairs))
	}
	scores := make([]float64, len(pairs))
	seen := make([]bool, len(pairs))
	for _, s := range resp {
		if s.Index < 0 || s.Index >= len(pairs) || seen[s.Index] {
			return nil, fmt.Errorf("inference: rerank returned invalid index %d", s.Index)
		}
		seen[s.Index] = true
		scores[s.Index] = s.Score
	}
	return scores, nil
}

type generateRequest struct {
	Inputs     string                 `json:"inputs"`
	Parameters healthbot.DecodeParams `json:"parameters"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Generate runs the seq2seq model with the given decode parameters.
func (c *Client) Generate(ctx context.Context, prompt string, params healthbot.DecodeParams) (string, error) {
	var resp generateResponse
	err := c.generateCB.do(func() error {
		return c.post(ctx, "/generate", generateRequest{Inputs: prompt, Parameters: params}, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.GeneratedText, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("inference: encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("inference: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference: call %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("model call", "path", path, "status", resp.StatusCode, "latency_ms", time.Since(started).Milliseconds())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("inference: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inference: decode %s response: %w", path, err)
	}
	return nil
}

var (
	_ healthbot.Encoder      = (*Client)(nil)
	_ healthbot.CrossEncoder = (*Client)(nil)
	_ healthbot.Generator    = (*Client)(nil)
)
