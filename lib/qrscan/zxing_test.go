// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/bureau-foundation/fieldverify/lib/clock"
)

func renderFrame(t *testing.T, payload string) *image.RGBA {
	t.Helper()
	badge, err := Render(payload, 256)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	frame := image.NewRGBA(badge.Bounds())
	draw.Draw(frame, frame.Bounds(), badge, badge.Bounds().Min, draw.Src)
	return frame
}

func TestZXingDecodesRenderedBadge(t *testing.T) {
	decoder := NewZXing(true)
	for _, payload := range []string{"USER-001", "job:42/route-7"} {
		got, ok := decoder.Decode(renderFrame(t, payload))
		if !ok {
			t.Fatalf("no code found in rendered %q", payload)
		}
		if got != payload {
			t.Errorf("Decode = %q, want %q", got, payload)
		}
	}
}

func TestZXingBlankFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if payload, ok := NewZXing(false).Decode(frame); ok {
		t.Errorf("blank frame decoded to %q", payload)
	}
}

func TestStillCameraEndToEnd(t *testing.T) {
	badge, err := Render("USER-001", 256)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	fake := clock.Fake(epoch)
	completer := &recordingCompleter{}
	scanner, err := New(Config{
		Camera:    StillCamera{Image: badge},
		Decoder:   NewZXing(true),
		Completer: completer,
		Clock:     fake,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := scanner.Start(context.Background(), "job-1", "USER-001")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	fake.Advance(DefaultFrameInterval)

	result := session.Result()
	if !result.Matched || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("pending ticks = %d after match", fake.PendingCount())
	}
}
