// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type completion struct {
	JobID       string    `json:"job_id"`
	Token       string    `json:"token,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

func TestRoundtripPreservesTime(t *testing.T) {
	original := completion{
		JobID:       "job-17",
		Token:       "USER-001",
		CompletedAt: time.Date(2026, 3, 2, 9, 15, 4, 123456789, time.UTC),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded completion
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.JobID != original.JobID || decoded.Token != original.Token {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
	if !decoded.CompletedAt.Equal(original.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", decoded.CompletedAt, original.CompletedAt)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"b": 2, "a": 1, "c": "x"}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(completion{JobID: "job-1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if fields["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want job-1", fields["job_id"])
	}
}

func TestValid(t *testing.T) {
	data, err := Marshal("ok")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := Valid(data); err != nil {
		t.Errorf("Valid(well-formed) = %v", err)
	}
	if err := Valid(data[:len(data)-1]); err == nil {
		t.Error("Valid(truncated) = nil, want error")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(completion{JobID: "job-2"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"job-2"`) {
		t.Errorf("Diagnose = %s, want it to mention job-2", text)
	}
}
