// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads for the backend and AI
// clients.
//
// Every response body read goes through a limit so a misbehaving
// server cannot exhaust device memory. Field devices have far less
// headroom than servers, so the bound is small.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bureau-foundation/fieldverify/lib/codec"
)

// MaxResponseSize bounds API response body reads: 8 MiB.
const MaxResponseSize int64 = 8 << 20

// maxErrorBody bounds the excerpt of an error body kept in messages.
const maxErrorBody = 4096

// ReadResponse reads a response body up to MaxResponseSize bytes. A
// body larger than the bound is an error rather than a silent
// truncation.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// DecodeJSON reads a bounded body and JSON-decodes it into v.
func DecodeJSON(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// DecodeCBOR reads a bounded body and CBOR-decodes it into v.
func DecodeCBOR(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return codec.Unmarshal(data, v)
}

// StatusError describes a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request later may succeed:
// server errors, throttling, and request timeouts.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// NewStatusError reads an excerpt of response's body into a
// StatusError. Read errors are ignored; a partial body is still
// useful in a message.
func NewStatusError(response *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	return &StatusError{
		StatusCode: response.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}
