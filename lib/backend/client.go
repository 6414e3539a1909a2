// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/fieldverify/lib/codec"
	"github.com/bureau-foundation/fieldverify/lib/netutil"
	"github.com/bureau-foundation/fieldverify/lib/version"
)

// DefaultCompressThreshold is the body size above which requests are
// zstd-compressed.
const DefaultCompressThreshold = 64 << 10

const contentTypeCBOR = "application/cbor"

// ErrRejected is returned when the backend refuses a mutation with a
// client error. Retrying the same mutation will not help.
var ErrRejected = errors.New("backend: mutation rejected")

// zstd encoders are safe for concurrent EncodeAll calls.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("backend: zstd encoder initialization failed: " + err.Error())
	}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the backend root, for example
	// "https://api.example.org". Required.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient. Set its Timeout to
	// bound each commit.
	HTTPClient *http.Client

	// CompressThreshold defaults to DefaultCompressThreshold. A
	// negative value disables compression.
	CompressThreshold int

	Logger *slog.Logger
}

// Client is the HTTP Committer.
type Client struct {
	endpoint          string
	httpClient        *http.Client
	compressThreshold int
	logger            *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("backend: BaseURL is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.CompressThreshold == 0 {
		config.CompressThreshold = DefaultCompressThreshold
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		endpoint:          strings.TrimSuffix(config.BaseURL, "/") + "/v1/mutations",
		httpClient:        config.HTTPClient,
		compressThreshold: config.CompressThreshold,
		logger:            config.Logger,
	}, nil
}

// Commit POSTs mutation. A 409 Conflict means the backend already
// holds this ID and is reported as a duplicate Ack. Other 4xx
// responses wrap ErrRejected; network errors and 5xx responses are
// returned as-is so callers can queue and retry.
func (client *Client) Commit(ctx context.Context, mutation Mutation) (Ack, error) {
	body, err := codec.Marshal(mutation)
	if err != nil {
		return Ack{}, fmt.Errorf("backend: encoding mutation %s: %w", mutation.ID, err)
	}

	compressed := false
	if client.compressThreshold > 0 && len(body) > client.compressThreshold {
		body = zstdEncoder.EncodeAll(body, nil)
		compressed = true
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("backend: creating request: %w", err)
	}
	request.Header.Set("Content-Type", contentTypeCBOR)
	request.Header.Set("Accept", contentTypeCBOR)
	request.Header.Set("Idempotency-Key", mutation.ID)
	request.Header.Set("User-Agent", version.UserAgent())
	if compressed {
		request.Header.Set("Content-Encoding", "zstd")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return Ack{}, fmt.Errorf("backend: committing %s: %w", mutation.ID, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusConflict:
		client.logger.Debug("mutation already committed", "mutation_id", mutation.ID)
		return Ack{ID: mutation.ID, Duplicate: true}, nil

	case response.StatusCode >= 200 && response.StatusCode < 300:
		var ack Ack
		if response.ContentLength != 0 && response.StatusCode != http.StatusNoContent {
			if err := netutil.DecodeCBOR(response.Body, &ack); err != nil {
				return Ack{}, fmt.Errorf("backend: decoding ack for %s: %w", mutation.ID, err)
			}
		}
		if ack.ID == "" {
			ack.ID = mutation.ID
		}
		if ack.ID != mutation.ID {
			return Ack{}, fmt.Errorf("backend: ack for %s names mutation %s", mutation.ID, ack.ID)
		}
		client.logger.Debug("mutation committed",
			"mutation_id", mutation.ID,
			"op", mutation.Op,
			"bytes", len(body),
			"compressed", compressed,
		)
		return ack, nil

	default:
		statusError := netutil.NewStatusError(response)
		if !statusError.Temporary() && response.StatusCode >= 400 && response.StatusCode < 500 {
			return Ack{}, fmt.Errorf("%w: %s: %w", ErrRejected, mutation.ID, statusError)
		}
		return Ack{}, fmt.Errorf("backend: committing %s: %w", mutation.ID, statusError)
	}
}
