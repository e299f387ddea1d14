// Package contentstore resolves content digests to bytes, local cache first
// with a remote blob store behind it.
package contentstore

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/zeebo/blake3"
)

// DigestPrefix marks a string as a store reference rather than literal text.
const DigestPrefix = "Qm"

// digestHexLen is the hex length of a 32-byte BLAKE3 digest.
const digestHexLen = 64

// ErrInvalidDigest is returned when a reference is not a well-formed digest.
var ErrInvalidDigest = errors.New("invalid content digest")

// contentDomainKey separates ticket content digests from other BLAKE3 uses.
var contentDomainKey = [32]byte{
	'l', 'e', 'd', 'g', 'e', 'r', 'd', 'e', 's', 'k', '.', 'c', 'o', 'n', 't', 'e',
	'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest computes the content reference for data. It needs no network
// access, so retries of a failed upload reuse the same reference.
func Digest(data []byte) string {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("contentstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return DigestPrefix + hex.EncodeToString(hasher.Sum(nil))
}

// IsDigest reports whether ref must be resolved through the store. Anything
// else, including data: URLs, is an already-resolved literal.
func IsDigest(ref string) bool {
	if len(ref) != len(DigestPrefix)+digestHexLen || !strings.HasPrefix(ref, DigestPrefix) {
		return false
	}
	for _, ch := range ref[len(DigestPrefix):] {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return false
		}
	}
	return true
}

// Verify reports whether data hashes to ref.
func Verify(ref string, data []byte) bool {
	return Digest(data) == ref
}
