// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync/atomic"
)

// StillCamera streams one fixed image, for the CLI and tests where no
// camera device exists.
type StillCamera struct {
	Image image.Image
}

// Open implements Camera. Facing is ignored.
func (c StillCamera) Open(ctx context.Context, _ Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Image == nil {
		return nil, errors.New("qrscan: still camera has no image")
	}
	return &stillStream{image: c.Image, track: &stillTrack{}}, nil
}

type stillStream struct {
	image image.Image
	track *stillTrack
}

func (s *stillStream) Tracks() []Track         { return []Track{s.track} }
func (s *stillStream) Ready() bool             { return s.track.Live() }
func (s *stillStream) Bounds() image.Rectangle { return s.image.Bounds() }

func (s *stillStream) CopyFrame(dst *image.RGBA) error {
	if !s.track.Live() {
		return errors.New("qrscan: track stopped")
	}
	draw.Draw(dst, dst.Bounds(), s.image, s.image.Bounds().Min, draw.Src)
	return nil
}

type stillTrack struct{ stopped atomic.Bool }

func (t *stillTrack) Stop()      { t.stopped.Store(true) }
func (t *stillTrack) Live() bool { return !t.stopped.Load() }
