package sendgrid

import (
	"bytes"
	"context"
	"encoding/base64"
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

// Mailer delivers one message through the v3 mail/send endpoint.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	From       Address
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:  strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
		BaseURL: envutil.String("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
		From: Address{
			Email: envutil.String("SENDGRID_FROM_EMAIL", ""),
			Name:  envutil.String("SENDGRID_FROM_NAME", "Enneagram Results"),
		},
		Timeout:    envutil.Seconds("SENDGRID_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: envutil.Int("SENDGRID_MAX_RETRIES", 4),
	}
}

type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment with a CID is sent inline so HTML bodies can reference it as
// cid:<CID>.
type Attachment struct {
	Name string
	Type string
	Data []byte
	CID  string
}

type Message struct {
	From        Address
	To          []Address
	Subject     string
	Text        string
	HTML        string
	Tags        []string
	Args        map[string]string
	Attachments []Attachment
}

type Receipt struct {
	Status    int
	MessageID string
}

var (
	errNoRecipient = errors.New("sendgrid: at least one recipient required")
	errNoSubject   = errors.New("sendgrid: subject required")
	errNoBody      = errors.New("sendgrid: text or html body required")
)

type mailer struct {
	log   *logger.Logger
	cfg   Config
	http  *http.Client
	retry httpx.Retrier
}

func New(log *logger.Logger, cfg Config) (Mailer, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing SENDGRID_API_KEY")
	}
	if cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	ml := log.With("client", "SendGrid")
	return &mailer{
		log:   ml,
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: httpx.Retrier{Log: ml, Service: "sendgrid", MaxRetries: cfg.MaxRetries, Backoff: time.Second, MaxWait: 10 * time.Second},
	}, nil
}

func (m *mailer) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.From.Email == "" {
		msg.From = m.cfg.From
	}
	body, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}
	var last *http.Response
	err = m.retry.Do(ctx, "/v3/mail/send", func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, m.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, _, err := httpx.Exchange(m.http, req, decodeError)
		last = resp
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	r := &Receipt{Status: last.StatusCode, MessageID: strings.TrimSpace(last.Header.Get("X-Message-Id"))}
	m.log.Debug("mail accepted", "message_id", r.MessageID, "recipients", len(msg.To))
	return r, nil
}

// encodeMessage validates msg and renders the mail/send JSON document.
func encodeMessage(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.From.Email) == "" {
		return nil, errors.New("sendgrid: sender required (set SENDGRID_FROM_EMAIL)")
	}
	if len(msg.To) == 0 {
		return nil, errNoRecipient
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		return nil, errNoSubject
	}

	type part struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	// text/plain has to come before text/html.
	var content []part
	for _, p := range []part{{"text/plain", msg.Text}, {"text/html", msg.HTML}} {
		if v := strings.TrimSpace(p.Value); v != "" {
			content = append(content, part{p.Type, v})
		}
	}
	if len(content) == 0 {
		return nil, errNoBody
	}

	type file struct {
		Content     string `json:"content"`
		Type        string `json:"type,omitempty"`
		Filename    string `json:"filename"`
		Disposition string `json:"disposition,omitempty"`
		ContentID   string `json:"content_id,omitempty"`
	}
	files := make([]file, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		name := strings.TrimSpace(a.Name)
		switch {
		case name == "":
			return nil, errors.New("sendgrid: attachment name required")
		case len(a.Data) == 0:
			return nil, fmt.Errorf("sendgrid: attachment %q is empty", name)
		}
		f := file{Content: base64.StdEncoding.EncodeToString(a.Data), Type: a.Type, Filename: name}
		if a.CID != "" {
			f.Disposition, f.ContentID = "inline", a.CID
		}
		files = append(files, f)
	}

	to := map[string]any{"to": msg.To}
	if len(msg.Args) > 0 {
		to["custom_args"] = msg.Args
	}
	doc := map[string]any{
		"personalizations": []map[string]any{to},
		"from":             msg.From,
		"subject":          subject,
		"content":          content,
	}
	if len(msg.Tags) > 0 {
		doc["categories"] = msg.Tags
	}
	if len(files) > 0 {
		doc["attachments"] = files
	}
	return json.Marshal(doc)
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

func decodeError(status int, raw []byte) error {
	var body struct {
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	he := &HTTPError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	if json.Unmarshal(raw, &body) == nil && len(body.Errors) > 0 {
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			if e.Field != "" {
				msgs = append(msgs, e.Field+": "+e.Message)
			} else {
				msgs = append(msgs, e.Message)
			}
		}
		he.Message = strings.Join(msgs, "; ")
	}
	return he
}
