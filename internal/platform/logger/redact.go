package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

type action int

const (
	keep action = iota
	drop
	digest
	maskEmail
)

// rules are matched by substring against the lower-cased key, first hit wins.
var rules = []struct {
	fragment string
	act      action
}{
	{"email", maskEmail},
	{"session_id", digest},
	{"respondent_id", digest},
	{"token", drop},
	{"authorization", drop},
	{"password", drop},
	{"secret", drop},
	{"api_key", drop},
	{"apikey", drop},
	{"coupon", drop},
}

// redactor scrubs personal data and credentials from log fields. A nil
// redactor passes fields through untouched.
type redactor struct {
	salt string
}

// redactorFromEnv returns nil when LOG_REDACTION_ENABLED is switched off.
func redactorFromEnv() *redactor {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		return nil
	}
	return &redactor{salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
}

func (r *redactor) apply(kv []any) []any {
	if r == nil || len(kv) == 0 {
		return kv
	}
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := fmt.Sprint(out[i])
		out[i] = key
		out[i+1] = r.value(key, out[i+1])
	}
	return out
}

func (r *redactor) value(key string, v any) any {
	switch classify(key) {
	case drop:
		return redacted
	case digest:
		return r.hash(v)
	case maskEmail:
		if s, ok := v.(string); ok {
			return maskAddress(s)
		}
		return redacted
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = r.value(k, inner)
		}
		return out
	case string:
		if looksLikeJWT(t) {
			return redacted
		}
	}
	return v
}

func classify(key string) action {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return keep
	}
	for _, rule := range rules {
		if strings.Contains(key, rule.fragment) {
			return rule.act
		}
	}
	return keep
}

func (r *redactor) hash(v any) string {
	s := strings.TrimSpace(fmt.Sprint(v))
	if v == nil || s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + s))
	return "hash:" + hex.EncodeToString(sum[:6])
}

// maskAddress keeps the first letter of the local part and the domain:
// someone@example.com becomes s***@example.com.
func maskAddress(s string) string {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return redacted
	}
	return s[:1] + "***" + s[at:]
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
