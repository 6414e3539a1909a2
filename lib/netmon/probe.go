// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netmon

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPProbe reports online when a GET of URL returns a non-5xx status
// within Timeout.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Check implements Probe.
func (p HTTPProbe) Check(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	response, err := client.Do(request)
	if err != nil {
		return false
	}
	defer response.Body.Close()
	// Drain a little so the connection can be reused.
	_, _ = io.CopyN(io.Discard, response.Body, 512)
	return response.StatusCode < 500
}
