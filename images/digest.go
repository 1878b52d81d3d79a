package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const digestAlgo = "sha256:"

// ErrCorrupt is returned by Get when a blob no longer hashes to its digest.
var ErrCorrupt = errors.New("image blob corrupt")

// Digest names an image blob by content: "sha256:" followed by 64 hex digits.
type Digest string

// DigestOf hashes data.
func DigestOf(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(digestAlgo + hex.EncodeToString(sum[:]))
}

// Valid reports whether d is a well-formed sha256 digest. Index entries that
// fail this never reach a blob path.
func (d Digest) Valid() bool {
	h, ok := strings.CutPrefix(string(d), digestAlgo)
	if !ok || len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil && strings.ToLower(h) == h
}

// Hex is the digest without its algorithm prefix; blobs are stored under it.
func (d Digest) Hex() string { return strings.TrimPrefix(string(d), digestAlgo) }

// Short is the first 12 hex digits, for listings.
func (d Digest) Short() string {
	if h := d.Hex(); len(h) > 12 { //nolint:mnd
		return h[:12]
	}
	return d.Hex()
}

// Matches reports whether data hashes to d.
func (d Digest) Matches(data []byte) bool {
	sum := sha256.Sum256(data)
	want, err := hex.DecodeString(d.Hex())
	return err == nil && bytes.Equal(sum[:], want)
}

func (d Digest) String() string { return string(d) }
