// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package aiverdict asks a vision model whether a proof photo shows a
// clean collection site.
//
// [Client] calls the Anthropic Messages API with the photo as a base64
// image block and expects a JSON object {"isClean": bool, "comment":
// string} in the first text block. Models often wrap JSON in a code
// fence or a sentence; the parser takes the outermost object.
package aiverdict

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/fieldverify/lib/netutil"
	"github.com/bureau-foundation/fieldverify/lib/proof"
)

const (
	// DefaultBaseURL is the public Anthropic API.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-sonnet-4-5"

	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 256
)

const systemPrompt = `You review photos taken by waste collection crews after they finish a pickup.
Decide whether the collection point is clean: no litter, no bags or bulky items left behind, bins emptied and upright.
Reply with only a JSON object: {"isClean": true|false, "comment": "<one short sentence>"}.`

const userPrompt = "Is this collection point clean?"

// ErrUnsupportedImage is returned for images the API cannot accept.
var ErrUnsupportedImage = errors.New("aiverdict: unsupported image type")

// Config configures a Client.
type Config struct {
	// APIKey is sent as x-api-key. Required.
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// HTTPClient defaults to http.DefaultClient. Its Timeout is the
	// only bound on a verdict call.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client implements proof.Validator.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ proof.Validator = (*Client)(nil)

// New validates config and returns a Client.
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("aiverdict: APIKey is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		endpoint:   strings.TrimSuffix(config.BaseURL, "/") + "/v1/messages",
		apiKey:     config.APIKey,
		model:      config.Model,
		httpClient: config.HTTPClient,
		logger:     config.Logger,
	}, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// ValidateCleanliness implements proof.Validator.
func (client *Client) ValidateCleanliness(ctx context.Context, image []byte) (proof.Verdict, error) {
	mediaType := http.DetectContentType(image)
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return proof.Verdict{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mediaType)
	}

	body, err := json.Marshal(messagesRequest{
		Model:     client.model,
		MaxTokens: defaultMaxTokens,
		System:    systemPrompt,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(image),
				}},
				{Type: "text", Text: userPrompt},
			},
		}},
	})
	if err != nil {
		return proof.Verdict{}, fmt.Errorf("aiverdict: marshaling request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(body))
	if err != nil {
		return proof.Verdict{}, fmt.Errorf("aiverdict: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-api-key", client.apiKey)
	request.Header.Set("anthropic-version", anthropicVersion)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return proof.Verdict{}, fmt.Errorf("aiverdict: sending request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return proof.Verdict{}, readAPIError(response)
	}

	var decoded messagesResponse
	if err := netutil.DecodeJSON(response.Body, &decoded); err != nil {
		return proof.Verdict{}, fmt.Errorf("aiverdict: decoding response: %w", err)
	}
	for _, block := range decoded.Content {
		if block.Type != "text" {
			continue
		}
		verdict, err := ParseVerdict(block.Text)
		if err != nil {
			return proof.Verdict{}, err
		}
		client.logger.Debug("cleanliness verdict",
			"clean", verdict.IsClean,
			"comment", verdict.Comment,
			"stop_reason", decoded.StopReason,
		)
		return verdict, nil
	}
	return proof.Verdict{}, errors.New("aiverdict: response has no text block")
}

// ParseVerdict extracts the verdict object from model text.
func ParseVerdict(text string) (proof.Verdict, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return proof.Verdict{}, fmt.Errorf("aiverdict: no JSON object in %q", truncate(text, 120))
	}
	var wire struct {
		IsClean *bool  `json:"isClean"`
		Comment string `json:"comment"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return proof.Verdict{}, fmt.Errorf("aiverdict: parsing verdict: %w", err)
	}
	if wire.IsClean == nil {
		return proof.Verdict{}, errors.New("aiverdict: verdict lacks isClean")
	}
	return proof.Verdict{IsClean: *wire.IsClean, Comment: strings.TrimSpace(wire.Comment)}, nil
}

// readAPIError parses {"type":"error","error":{"type","message"}}.
func readAPIError(response *http.Response) error {
	statusError := netutil.NewStatusError(response)
	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(statusError.Body), &wire) == nil && wire.Error.Message != "" {
		return fmt.Errorf("aiverdict: HTTP %d: %s: %s", response.StatusCode, wire.Error.Type, wire.Error.Message)
	}
	return fmt.Errorf("aiverdict: %w", statusError)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
