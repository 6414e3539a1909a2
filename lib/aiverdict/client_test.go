// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aiverdict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// A minimal JPEG header is enough for content sniffing.
var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{APIKey: "test-key", BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func textResponse(writer http.ResponseWriter, text string) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
}

func TestValidateCleanliness(t *testing.T) {
	var captured messagesRequest
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", request.URL.Path)
		}
		if request.Header.Get("x-api-key") != "test-key" || request.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("headers = %v", request.Header)
		}
		if err := json.NewDecoder(request.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		textResponse(writer, "```json\n{\"isClean\": false, \"comment\": \" Two bags left by the gate. \"}\n```")
	})

	verdict, err := client.ValidateCleanliness(context.Background(), jpeg)
	if err != nil {
		t.Fatalf("ValidateCleanliness: %v", err)
	}
	if verdict.IsClean || verdict.Comment != "Two bags left by the gate." {
		t.Errorf("verdict = %+v", verdict)
	}

	if captured.Model != DefaultModel || len(captured.Messages) != 1 {
		t.Fatalf("request = %+v", captured)
	}
	blocks := captured.Messages[0].Content
	if len(blocks) != 2 || blocks[0].Type != "image" || blocks[0].Source.MediaType != "image/jpeg" {
		t.Errorf("content blocks = %+v", blocks)
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		writer.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})
	_, err := client.ValidateCleanliness(context.Background(), jpeg)
	if err == nil {
		t.Fatal("429 did not produce an error")
	}
	if got := err.Error(); got != "aiverdict: HTTP 429: rate_limit_error: slow down" {
		t.Errorf("error = %q", got)
	}
}

func TestUnsupportedImage(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request sent for an unsupported image")
	})
	_, err := client.ValidateCleanliness(context.Background(), []byte{0x00, 0x01, 0x02, 0x03})
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("error = %v, want ErrUnsupportedImage", err)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    bool
		comment string
		wantErr bool
	}{
		{name: "bare", text: `{"isClean":true,"comment":"ok"}`, want: true, comment: "ok"},
		{name: "prose", text: `Here is my verdict: {"isClean": false, "comment": "litter"} Thanks.`, comment: "litter"},
		{name: "missing field", text: `{"comment":"unsure"}`, wantErr: true},
		{name: "no object", text: "I cannot tell.", wantErr: true},
		{name: "malformed", text: `{"isClean": maybe}`, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict, err := ParseVerdict(test.text)
			if test.wantErr {
				if err == nil {
					t.Errorf("ParseVerdict(%q) = %+v, want error", test.text, verdict)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict: %v", err)
			}
			if verdict.IsClean != test.want || verdict.Comment != test.comment {
				t.Errorf("verdict = %+v", verdict)
			}
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without APIKey succeeded")
	}
}
