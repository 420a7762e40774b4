// Package service provides business logic for the application.
package service

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Service errors.
var (
	ErrInvalidVideoURL     = errors.New("invalid video URL")
	ErrInvalidPrompt       = errors.New("invalid prompt")
	ErrJobNotFound         = errors.New("job not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDispatchFailed      = errors.New("failed to dispatch job")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidGrant        = errors.New("invalid credit grant")
)

const (
	maxVideoURLLength = 2048
	maxPromptLength   = 2000
	maxGrantAmount    = 10000
)

// ValidateVideoURL checks that raw is an absolute http(s) URL.
func ValidateVideoURL(raw string) error {
	if raw == "" || len(raw) > maxVideoURLLength {
		return ErrInvalidVideoURL
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidVideoURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidVideoURL
	}
	if parsed.Host == "" {
		return ErrInvalidVideoURL
	}
	return nil
}

// NormalizePrompt trims prompt and checks its length in characters.
func NormalizePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	n := utf8.RuneCountInString(prompt)
	if n == 0 || n > maxPromptLength {
		return "", ErrInvalidPrompt
	}
	return prompt, nil
}
