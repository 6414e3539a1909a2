// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"net/http"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/fieldverify/lib/codec"
	"github.com/bureau-foundation/fieldverify/lib/netutil"
)

var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("backend: zstd decoder initialization failed: " + err.Error())
	}
}

// ServeHTTP implements the mutation endpoint against m: POST a CBOR
// Mutation (optionally zstd-encoded) with an Idempotency-Key equal to
// its ID. New mutations get 200 with a CBOR Ack; repeats get 409.
func (m *Memory) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost || request.URL.Path != "/v1/mutations" {
		http.NotFound(writer, request)
		return
	}
	if request.Header.Get("Content-Type") != contentTypeCBOR {
		http.Error(writer, "content type must be "+contentTypeCBOR, http.StatusUnsupportedMediaType)
		return
	}

	body, err := netutil.ReadResponse(request.Body)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	switch request.Header.Get("Content-Encoding") {
	case "":
	case "zstd":
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			http.Error(writer, "invalid zstd body: "+err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(writer, "unsupported content encoding", http.StatusUnsupportedMediaType)
		return
	}

	var mutation Mutation
	if err := codec.Unmarshal(body, &mutation); err != nil {
		http.Error(writer, "invalid mutation: "+err.Error(), http.StatusBadRequest)
		return
	}
	if key := request.Header.Get("Idempotency-Key"); key == "" || key != mutation.ID {
		http.Error(writer, "Idempotency-Key must equal the mutation id", http.StatusBadRequest)
		return
	}

	if err := m.injectedFailure(); err != nil {
		http.Error(writer, err.Error(), http.StatusServiceUnavailable)
		return
	}
	ack := m.accept(mutation)
	if ack.Duplicate {
		writer.WriteHeader(http.StatusConflict)
		return
	}

	encoded, err := codec.Marshal(ack)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", contentTypeCBOR)
	writer.WriteHeader(http.StatusOK)
	writer.Write(encoded)
}
