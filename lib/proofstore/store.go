// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/fieldverify/lib/clock"
	"github.com/bureau-foundation/fieldverify/lib/codec"
)

// RefPrefix starts every proof reference.
const RefPrefix = "blake3:"

// DeviceKeySize is the length of the device secret.
const DeviceKeySize = 32

var (
	// ErrNotFound is returned for a reference with no stored photo.
	ErrNotFound = errors.New("proofstore: proof not found")

	// ErrAttestation is returned when a record's attestation tag does
	// not verify.
	ErrAttestation = errors.New("proofstore: attestation mismatch")

	// ErrCorrupt is returned when stored bytes do not hash to their
	// reference or to the recorded body digest.
	ErrCorrupt = errors.New("proofstore: content does not match reference")

	errIncompressible = errors.New("incompressible")
)

var fileMagic = []byte("FVPROOF1")

// hkdfInfoAttestation prefixes the job id in the HKDF info.
// Changing it invalidates every stored attestation.
var hkdfInfoAttestation = []byte("fieldverify.proof.attest.v1")

// Compression names how a body is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
)

// Record describes a stored photo.
type Record struct {
	Ref         string      `cbor:"ref"`
	JobID       string      `cbor:"job_id"`
	Size        int64       `cbor:"size"`
	ContentType string      `cbor:"content_type"`
	Compression Compression `cbor:"compression"`
	Sealed      bool        `cbor:"sealed"`
	CapturedAt  time.Time   `cbor:"captured_at"`

	// BodyDigest is the BLAKE3 digest of the bytes on disk, after
	// compression and sealing. Verify checks it without decrypting.
	BodyDigest  []byte `cbor:"body_digest"`
	Attestation []byte `cbor:"attestation"`
}

// Config configures a Store.
type Config struct {
	// Dir holds the photos. Created if missing.
	Dir string

	// DeviceKey is the attestation secret, DeviceKeySize bytes. See
	// LoadOrCreateDeviceKey.
	DeviceKey []byte

	// Recipients are age X25519 public keys (age1...). Empty stores
	// photos unsealed.
	Recipients []string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is a directory of proof photos. Safe for concurrent use.
type Store struct {
	dir        string
	deviceKey  []byte
	recipients []age.Recipient
	clock      clock.Clock
	logger     *slog.Logger
}

// Open validates config and prepares the directory.
func Open(config Config) (*Store, error) {
	if config.Dir == "" {
		return nil, errors.New("proofstore: Dir is required")
	}
	if len(config.DeviceKey) != DeviceKeySize {
		return nil, fmt.Errorf("proofstore: device key must be %d bytes, got %d", DeviceKeySize, len(config.DeviceKey))
	}
	recipients := make([]age.Recipient, 0, len(config.Recipients))
	for _, key := range config.Recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("proofstore: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("proofstore: %w", err)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		dir:        config.Dir,
		deviceKey:  bytes.Clone(config.DeviceKey),
		recipients: recipients,
		clock:      config.Clock,
		logger:     config.Logger,
	}, nil
}

// Put stores image as proof for jobID.
func (s *Store) Put(jobID string, image []byte) (Record, error) {
	if len(image) == 0 {
		return Record{}, errors.New("proofstore: empty image")
	}
	if err := checkJobID(jobID); err != nil {
		return Record{}, err
	}
	digest := blake3.Sum256(image)
	record := Record{
		Ref:         RefPrefix + hex.EncodeToString(digest[:]),
		JobID:       jobID,
		Size:        int64(len(image)),
		ContentType: http.DetectContentType(image),
		Compression: CompressionNone,
		CapturedAt:  s.clock.Now().UTC(),
	}

	body := image
	if !alreadyCompressed(record.ContentType) {
		compressed, err := compressLZ4(image)
		switch {
		case err == nil:
			body = compressed
			record.Compression = CompressionLZ4
		case !errors.Is(err, errIncompressible):
			return Record{}, fmt.Errorf("proofstore: %w", err)
		}
	}

	if len(s.recipients) > 0 {
		sealed, err := seal(body, s.recipients)
		if err != nil {
			return Record{}, fmt.Errorf("proofstore: sealing %s: %w", record.Ref, err)
		}
		body = sealed
		record.Sealed = true
	}
	bodyDigest := blake3.Sum256(body)
	record.BodyDigest = bodyDigest[:]

	attestation, err := s.attest(record)
	if err != nil {
		return Record{}, err
	}
	record.Attestation = attestation

	if err := s.write(record, body); err != nil {
		return Record{}, err
	}
	s.logger.Debug("proof stored",
		"ref", record.Ref,
		"job_id", jobID,
		"size", record.Size,
		"stored_bytes", len(body),
		"compression", string(record.Compression),
		"sealed", record.Sealed,
	)
	return record, nil
}

// Stat returns the record jobID holds for ref. The body is not
// checked; use Verify for that.
func (s *Store) Stat(ref, jobID string) (Record, error) {
	record, _, err := s.read(ref, jobID)
	return record, err
}

// Get returns the original image bytes. Sealed photos need one of
// the recipients' identities (AGE-SECRET-KEY-1...).
func (s *Store) Get(ref, jobID string, identities ...string) ([]byte, Record, error) {
	record, body, err := s.read(ref, jobID)
	if err != nil {
		return nil, Record{}, err
	}

	if record.Sealed {
		if len(identities) == 0 {
			return nil, Record{}, fmt.Errorf("proofstore: %s is sealed and no identity was given", ref)
		}
		parsed := make([]age.Identity, 0, len(identities))
		for _, identity := range identities {
			x25519, err := age.ParseX25519Identity(identity)
			if err != nil {
				return nil, Record{}, fmt.Errorf("proofstore: parsing identity: %w", err)
			}
			parsed = append(parsed, x25519)
		}
		body, err = unseal(body, parsed)
		if err != nil {
			return nil, Record{}, fmt.Errorf("proofstore: unsealing %s: %w", ref, err)
		}
	}

	image := body
	if record.Compression == CompressionLZ4 {
		image, err = decompressLZ4(body, int(record.Size))
		if err != nil {
			return nil, Record{}, fmt.Errorf("proofstore: %s: %w", ref, err)
		}
	}

	digest := blake3.Sum256(image)
	if RefPrefix+hex.EncodeToString(digest[:]) != ref {
		return nil, Record{}, fmt.Errorf("%w: %s", ErrCorrupt, ref)
	}
	return image, record, nil
}

// Verify checks that ref was captured on this device for jobID and
// that the stored bytes are the ones captured. Sealed photos verify
// without an identity.
func (s *Store) Verify(ref, jobID string) error {
	record, body, err := s.read(ref, jobID)
	if err != nil {
		return err
	}
	if record.JobID != jobID {
		return fmt.Errorf("%w: %s was captured for job %q, not %q", ErrAttestation, ref, record.JobID, jobID)
	}
	expected, err := s.attest(record)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, record.Attestation) {
		return fmt.Errorf("%w: %s", ErrAttestation, ref)
	}
	bodyDigest := blake3.Sum256(body)
	if !hmac.Equal(bodyDigest[:], record.BodyDigest) {
		return fmt.Errorf("%w: %s: stored body was modified", ErrCorrupt, ref)
	}
	return nil
}

// Delete removes jobID's copy of ref. Other jobs holding the same
// bytes keep theirs. Deleting a missing photo is not an error.
func (s *Store) Delete(ref, jobID string) error {
	path, err := s.path(ref, jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("proofstore: deleting %s: %w", ref, err)
	}
	s.logger.Debug("proof deleted", "ref", ref, "job_id", jobID)
	return nil
}

// attest computes the attestation tag over record's content digest,
// job, capture time and body digest.
func (s *Store) attest(record Record) ([]byte, error) {
	digest, err := parseRef(record.Ref)
	if err != nil {
		return nil, err
	}

	info := make([]byte, 0, len(hkdfInfoAttestation)+len(record.JobID))
	info = append(info, hkdfInfoAttestation...)
	info = append(info, record.JobID...)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.deviceKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("proofstore: deriving attestation key: %w", err)
	}

	hasher, err := blake3.NewKeyed(key)
	if err != nil {
		panic("proofstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(digest)
	hasher.Write([]byte(record.JobID))
	var timestamp [8]byte
	binary.BigEndian.PutUint64(timestamp[:], uint64(record.CapturedAt.UnixNano()))
	hasher.Write(timestamp[:])
	hasher.Write(record.BodyDigest)
	return hasher.Sum(nil), nil
}

// path is dir/<jobID>/<hex>.proof. Identical photos taken for two
// jobs are stored twice.
func (s *Store) path(ref, jobID string) (string, error) {
	digest, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, jobID, hex.EncodeToString(digest)+".proof"), nil
}

// checkJobID rejects ids that are not a single path element.
func checkJobID(jobID string) error {
	if jobID == "" || jobID == "." || strings.ContainsAny(jobID, "/\\\x00") || !filepath.IsLocal(jobID) {
		return fmt.Errorf("proofstore: job id %q cannot name a proof directory", jobID)
	}
	return nil
}

func parseRef(ref string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return nil, fmt.Errorf("proofstore: reference %q lacks %q prefix", ref, RefPrefix)
	}
	digest, err := hex.DecodeString(encoded)
	if err != nil || len(digest) != 32 {
		return nil, fmt.Errorf("proofstore: malformed reference %q", ref)
	}
	return digest, nil
}

func (s *Store) write(record Record, body []byte) error {
	path, err := s.path(record.Ref, record.JobID)
	if err != nil {
		return err
	}
	header, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("proofstore: encoding header: %w", err)
	}

	var file bytes.Buffer
	file.Grow(len(fileMagic) + 4 + len(header) + len(body))
	file.Write(fileMagic)
	binary.Write(&file, binary.BigEndian, uint32(len(header)))
	file.Write(header)
	file.Write(body)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("proofstore: %w", err)
	}
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, file.Bytes(), 0o600); err != nil {
		return fmt.Errorf("proofstore: writing %s: %w", record.Ref, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("proofstore: committing %s: %w", record.Ref, err)
	}
	return nil
}

func (s *Store) read(ref, jobID string) (Record, []byte, error) {
	path, err := s.path(ref, jobID)
	if err != nil {
		return Record{}, nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("proofstore: reading %s: %w", ref, err)
	}

	rest, ok := bytes.CutPrefix(data, fileMagic)
	if !ok || len(rest) < 4 {
		return Record{}, nil, fmt.Errorf("%w: %s: bad file header", ErrCorrupt, ref)
	}
	headerLength := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if uint64(headerLength) > uint64(len(rest)) {
		return Record{}, nil, fmt.Errorf("%w: %s: truncated header", ErrCorrupt, ref)
	}
	var record Record
	if err := codec.Unmarshal(rest[:headerLength], &record); err != nil {
		return Record{}, nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, ref, err)
	}
	if record.Ref != ref {
		return Record{}, nil, fmt.Errorf("%w: %s: header names %s", ErrCorrupt, ref, record.Ref)
	}
	return record, rest[headerLength:], nil
}

// LoadOrCreateDeviceKey reads the device secret at path, generating
// and writing a new one (mode 0600) if the file does not exist.
func LoadOrCreateDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != DeviceKeySize {
			return nil, fmt.Errorf("proofstore: device key %s has %d bytes, want %d", path, len(key), DeviceKeySize)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("proofstore: reading device key: %w", err)
	}

	key = make([]byte, DeviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("proofstore: generating device key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("proofstore: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("proofstore: writing device key: %w", err)
	}
	return key, nil
}

func alreadyCompressed(contentType string) bool {
	return contentType == "image/jpeg" || contentType == "image/png" || contentType == "image/webp"
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func seal(plaintext []byte, recipients []age.Recipient) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return ciphertext.Bytes(), nil
}

func unseal(ciphertext []byte, identities []age.Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}
