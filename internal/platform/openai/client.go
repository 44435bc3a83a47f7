package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/httpx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// Client produces a single text completion through the Responses API.
type Client interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	Model() string
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     *float64
	MaxOutputTokens int
	Timeout         time.Duration
	MaxRetries      int
}

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4.1-mini"
	responsesPath  = "/v1/responses"
)

// ConfigFromEnv reads OPENAI_*. OPENAI_TEMPERATURE=off leaves temperature
// out of the request entirely.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         envutil.String("OPENAI_BASE_URL", defaultBaseURL),
		Model:           envutil.String("OPENAI_MODEL", defaultModel),
		MaxOutputTokens: envutil.Int("OPENAI_MAX_OUTPUT_TOKENS", 0),
		Timeout:         envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries:      envutil.Int("OPENAI_MAX_RETRIES", 3),
	}
	switch strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")) {
	case "off", "none", "false":
	default:
		t := envutil.Float("OPENAI_TEMPERATURE", 0.7)
		cfg.Temperature = &t
	}
	return cfg
}

type client struct {
	log   *logger.Logger
	cfg   Config
	http  *http.Client
	retry httpx.Retrier
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	if cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	cl := log.With("client", "OpenAI", "model", cfg.Model)
	return &client{
		log:   cl,
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: httpx.Retrier{Log: cl, Service: "openai", MaxRetries: cfg.MaxRetries, Backoff: time.Second, MaxWait: 10 * time.Second},
	}, nil
}

func (c *client) Model() string { return c.cfg.Model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string    `json:"model"`
	Input           []message `json:"input"`
	Temperature     *float64  `json:"temperature,omitempty"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

type responsesResponse struct {
	Status            string       `json:"status"`
	Output            []outputItem `json:"output"`
	Refusal           string       `json:"refusal,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// text joins every output_text part of the assistant messages.
func (r *responsesResponse) text() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, p := range item.Content {
			if p.Type == "output_text" {
				b.WriteString(p.Text)
			}
		}
	}
	return b.String()
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responsesRequest{
		Model:           c.cfg.Model,
		Input:           []message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	resp, err := c.create(ctx, req)
	if err != nil && req.Temperature != nil && rejectsTemperature(err) {
		c.log.Info("model rejected temperature, retrying without it")
		req.Temperature = nil
		resp, err = c.create(ctx, req)
	}
	if err != nil {
		return "", err
	}
	switch {
	case resp.Refusal != "":
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	case resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason != "":
		c.log.Warn("response incomplete", "reason", resp.IncompleteDetails.Reason)
	}
	out := resp.text()
	if strings.TrimSpace(out) == "" {
		return "", errors.New("openai: response carried no output_text")
	}
	c.log.Debug("response received", "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return out, nil
}

func (c *client) create(ctx context.Context, body responsesRequest) (*responsesResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = c.retry.Do(ctx, responsesPath, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.BaseURL+responsesPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, b, err := httpx.Exchange(c.http, req, func(status int, b []byte) error {
			return &HTTPError{StatusCode: status, Body: string(b)}
		})
		raw = b
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	var out responsesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	return &out, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	const limit = 2000
	body := e.Body
	if len(body) > limit {
		body = body[:limit] + "..."
	}
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// rejectsTemperature spots the 400 reasoning models return for a
// temperature parameter they do not accept.
func rejectsTemperature(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(he.Body)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, hint := range []string{"unsupported", "not supported", "does not support", "unknown parameter"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
