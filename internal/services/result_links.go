package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
)

const resultLinkAudience = "results"

type ResultLinkClaims struct {
	jwt.RegisteredClaims
}

// ResultLinks signs and checks the bearer tokens in emailed result links.
type ResultLinks struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewResultLinks(secret string, ttl time.Duration, baseURL string) (*ResultLinks, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("missing RESULTS_LINK_SECRET")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ResultLinks{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

func (l *ResultLinks) Sign(assessmentID string) (string, time.Time, error) {
	now := l.now()
	exp := now.Add(l.ttl)
	claims := ResultLinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   assessmentID,
			Audience:  jwt.ClaimStrings{resultLinkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign result link: %w", err)
	}
	return token, exp, nil
}

// URL returns the shareable link for assessmentID.
func (l *ResultLinks) URL(assessmentID string) (string, error) {
	token, _, err := l.Sign(assessmentID)
	if err != nil {
		return "", err
	}
	return l.baseURL + "/" + token, nil
}

// Parse returns the assessment id carried by a valid, unexpired token.
func (l *ResultLinks) Parse(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apierr.Validation("missing_token", "result link token is required")
	}
	parsed, err := jwt.ParseWithClaims(token, &ResultLinkClaims{}, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(resultLinkAudience),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return "", apierr.Forbidden("invalid_link", "result link rejected: %v", err)
	}
	claims, ok := parsed.Claims.(*ResultLinkClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", apierr.Forbidden("invalid_link", "result link rejected")
	}
	return claims.Subject, nil
}
