// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	options := cbor.CoreDetEncOptions()
	// Timestamps are encoded as RFC 3339 text with nanoseconds so that
	// completion times survive replay without precision loss.
	options.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage holds encoded CBOR whose decoding is deferred, such as an
// opaque queue payload embedded in a backend mutation.
type RawMessage = cbor.RawMessage

// Valid reports an error if data is not exactly one well-formed CBOR
// item.
func Valid(data []byte) error {
	if err := decMode.Wellformed(data); err != nil {
		return fmt.Errorf("codec: malformed CBOR: %w", err)
	}
	return nil
}

// Diagnose renders data in CBOR diagnostic notation for debugging
// output (the CLI's queue listing uses it).
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
