package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/services"
)

// Client talks to a running enneagram API. It satisfies
// services.AnalysisSource, so AwaitAnalysis can poll a remote deployment.
type Client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func New(log *logger.Logger, baseURL string, timeout time.Duration) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing api base url")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		log:        log.With("client", "APIClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) GetOrStartAnalysis(ctx context.Context, assessmentID string) (*services.AnalysisOutcome, error) {
	var out services.AnalysisOutcome
	if err := c.get(ctx, "/api/assessments/"+url.PathEscape(assessmentID)+"/analysis", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetResults(ctx context.Context, assessmentID string) (*services.Results, error) {
	var out services.Results
	if err := c.get(ctx, "/api/assessments/"+url.PathEscape(assessmentID)+"/results", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		var env errorEnvelope
		_ = json.Unmarshal(body, &env)
		msg := env.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		c.log.Debug("api error", "path", path, "status", resp.StatusCode, "code", env.Error.Code)
		return apierr.FromStatus(resp.StatusCode, env.Error.Code, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
