package access

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned for strings that are not 20-byte hex accounts.
var ErrInvalidAddress = errors.New("invalid account address")

// NormalizeAddress validates a 0x-prefixed account address and returns its
// EIP-55 mixed-case checksum form, so equal accounts compare equal as strings.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !(strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")) {
		return "", ErrInvalidAddress
	}
	lower := strings.ToLower(addr[2:])
	if _, err := hex.DecodeString(lower); err != nil {
		return "", ErrInvalidAddress
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	digest := hex.EncodeToString(hasher.Sum(nil))

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		if ch >= 'a' && ch <= 'f' && digest[i] >= '8' {
			ch -= 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out), nil
}

// MustNormalize is NormalizeAddress for literals known to be valid.
func MustNormalize(addr string) string {
	out, err := NormalizeAddress(addr)
	if err != nil {
		panic("access: " + err.Error() + ": " + addr)
	}
	return out
}
