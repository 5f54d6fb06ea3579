package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Request asks the text service for one utterance.
type Request struct {
	AgentName   string `json:"agent_name"`
	Personality string `json:"personality"`
	Kind        string `json:"kind"` // "post", "comment", "chat"
	Prompt      string `json:"prompt"`
	ReplyTo     string `json:"reply_to,omitempty"`

	// ReplyToID is the post being commented on; carried through to the
	// result, not sent to the service.
	ReplyToID int64 `json:"-"`
}

// Result is delivered on the results channel and drained by the input phase.
// Title is only set for posts; comments are plain text.
type Result struct {
	AgentName string
	BotID     int64
	Kind      string
	ReplyToID int64
	PostID    int64 // id of the row the worker inserted, 0 if none
	Title     string
	Text      string
	Fallback  bool // true when the service failed and a placeholder was used
}

type apiResponse struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Client talks to the external text-generation service. Generate runs on the
// caller's goroutine; the sim dispatches it from worker goroutines and
// receives results over a channel, never blocking the tick.
type Client struct {
	cfg  config.GenerationConfig
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.GenerationConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Generate requests one utterance, retrying on 429 and 5xx with exponential
// backoff. On exhaustion it returns a placeholder line instead of an error:
// the sim always gets something to say.
func (c *Client) Generate(ctx context.Context, req Request) Result {
	res := Result{AgentName: req.AgentName, Kind: req.Kind, ReplyToID: req.ReplyToID}

	body, err := json.Marshal(req)
	if err != nil {
		c.log.Error("gen request marshal failed", zap.Error(err))
		return fallbackResult(res)
	}

	backoff := retry.NewExponential(c.cfg.BackoffBase)
	backoff = retry.WithCappedDuration(c.cfg.BackoffCap, backoff)
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), backoff)

	var out apiResponse
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		o, err := c.attempt(ctx, body)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		c.log.Warn("gen request exhausted retries",
			zap.String("agent", req.AgentName), zap.Error(err))
		return fallbackResult(res)
	}

	clean, ok := Sanitize(out.Text)
	if !ok {
		c.log.Warn("gen response rejected by sanitizer",
			zap.String("agent", req.AgentName))
		return fallbackResult(res)
	}
	res.Text = clean
	if req.Kind == "post" {
		if title, ok := Sanitize(out.Title); ok {
			res.Title = title
		} else {
			res.Title = PlaceholderTitle()
		}
	}
	return res
}

func fallbackResult(res Result) Result {
	res.Text = Placeholder(res.Kind)
	if res.Kind == "post" {
		res.Title = PlaceholderTitle()
	}
	res.Fallback = true
	return res
}

func (c *Client) attempt(ctx context.Context, body []byte) (apiResponse, error) {
	var out apiResponse
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return out, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return out, retry.RetryableError(fmt.Errorf("gen service status %d", resp.StatusCode))
	default:
		io.Copy(io.Discard, resp.Body)
		return out, fmt.Errorf("gen service status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode gen response: %w", err)
	}
	return out, nil
}

// Placeholder returns canned filler for when the service is unavailable.
func Placeholder(kind string) string {
	switch kind {
	case "post":
		return "Another day on the bridge."
	case "comment":
		return "Agreed."
	default:
		return "..."
	}
}

// PlaceholderTitle is the title used when the service fails or returns an
// unusable one.
func PlaceholderTitle() string {
	return "Bridge log"
}
