// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"context"
	"image"
)

// Facing selects a camera.
type Facing string

const (
	FacingRear  Facing = "rear"
	FacingFront Facing = "front"
)

// Camera opens video streams.
type Camera interface {
	// Open starts a stream. On error the returned Stream, if non-nil,
	// holds partially acquired tracks that the caller stops.
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is a live video feed.
type Stream interface {
	Tracks() []Track

	// Ready reports whether a full frame is buffered.
	Ready() bool

	// Bounds is the frame size.
	Bounds() image.Rectangle

	// CopyFrame writes the current frame into dst, which has Bounds().
	CopyFrame(dst *image.RGBA) error
}

// Track is one media track of a stream.
type Track interface {
	Stop()
	Live() bool
}

func stopTracks(stream Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}

func anyLive(stream Stream) bool {
	for _, track := range stream.Tracks() {
		if track.Live() {
			return true
		}
	}
	return false
}
