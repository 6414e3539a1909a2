// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package qrscan

import (
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder finds a QR symbol in a frame. ok is false when none is
// found.
type Decoder interface {
	Decode(frame *image.RGBA) (payload string, ok bool)
}

// ZXing decodes with the gozxing QR reader.
type ZXing struct {
	mu     sync.Mutex
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXing returns a decoder. tryHarder trades frame rate for finding
// small or skewed codes.
func NewZXing(tryHarder bool) *ZXing {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &ZXing{reader: qrcode.NewQRCodeReader(), hints: hints}
}

// Decode implements Decoder.
func (z *ZXing) Decode(frame *image.RGBA) (string, bool) {
	bitmap, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", false
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	result, err := z.reader.Decode(bitmap, z.hints)
	// The reader keeps per-decode state.
	z.reader.Reset()
	if err != nil {
		return "", false
	}
	return result.GetText(), true
}

// Render draws payload as a size×size QR code, as printed on job
// badges.
func Render(payload string, size int) (image.Image, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("qrscan: rendering %q: %w", payload, err)
	}
	return matrix, nil
}
