// Package openai implements embedding.Embedder over the OpenAI
// embeddings API.
package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/embedding"
	"github.com/photosmith/photosmith/internal/llm"
)

// Config for the embeddings client.
type Config struct {
	APIKey    string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL   string        // default https://api.openai.com/v1
	Model     string        // e.g., "text-embedding-3-small"
	Dimension int           // fixed corpus dimension, default 512
	Timeout   time.Duration // http client timeout
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var _ embedding.Embedder = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// EmbedText embeds text and returns a unit vector of the configured
// dimension.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	body := map[string]any{
		"model":      c.cfg.Model,
		"input":      text,
		"dimensions": c.cfg.Dimension,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("embed.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, common.Permanentf(err, "decode embeddings response")
	}
	if len(resp.Data) == 0 {
		return nil, common.Permanentf(nil, "no data in embeddings response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.cfg.Dimension {
		// Dimension drift means the provider model changed underneath
		// the corpus. Refusing here is what keeps stored vectors
		// comparable; fixing it is a migration, not a retry.
		return nil, common.Permanentf(nil, "embedding dimension %d, want %d", len(vec), c.cfg.Dimension)
	}

	embedding.Normalize(vec)

	c.log.Debug("embed.ok",
		"text_len", len(text),
		"dimension", len(vec),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vec, nil
}

// EmbedImage derives the image vector from the vision description and
// keywords: the embeddings API has no native image input, and the
// description is produced from the same prepared bytes.
func (c *Client) EmbedImage(ctx context.Context, _ []byte, fallbackText string) ([]float32, error) {
	if strings.TrimSpace(fallbackText) == "" {
		return nil, common.Permanentf(nil, "empty fallback text for image embedding")
	}
	return c.EmbedText(ctx, fallbackText)
}
