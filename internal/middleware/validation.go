package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Request limits enforced before anything reaches a service.
const (
	// MaxTextLength is the maximum number of characters in a TTS request.
	MaxTextLength = 5000

	// MaxCallbackURLLength is the maximum length of a job callback URL.
	MaxCallbackURLLength = 2048

	// MaxIdempotencyKeyLength bounds the Idempotency-Key header.
	MaxIdempotencyKeyLength = 255

	// MaxNameLength bounds project, key and voice names.
	MaxNameLength = 100
)

// Validation errors.
var (
	ErrTextTooLong           = errors.New("text exceeds maximum length")
	ErrTextInvalid           = errors.New("text must be valid UTF-8 without NUL bytes")
	ErrCallbackURLTooLong    = errors.New("callback URL exceeds maximum length")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key exceeds maximum length")
	ErrIdempotencyKeyInvalid = errors.New("idempotency key must be printable ASCII")
	ErrNameTooLong           = errors.New("name exceeds maximum length")
	ErrNameInvalid           = errors.New("name must be valid UTF-8 without NUL bytes")
)

// ValidateText checks TTS input text. Postgres TEXT cannot hold NUL.
func ValidateText(text string) error {
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return ErrTextInvalid
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// ValidateCallbackURLLength checks the raw callback URL before parsing.
// Scheme and address checks live in the webhook package.
func ValidateCallbackURLLength(url string) error {
	if len(url) > MaxCallbackURLLength {
		return ErrCallbackURLTooLong
	}
	return nil
}

// ValidateIdempotencyKey checks an Idempotency-Key header value.
// Empty is valid and means no idempotency.
func ValidateIdempotencyKey(key string) error {
	if len(key) > MaxIdempotencyKeyLength {
		return ErrIdempotencyKeyTooLong
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return ErrIdempotencyKeyInvalid
		}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if !utf8.ValidString(name) || strings.ContainsRune(name, 0) {
		return ErrNameInvalid
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
