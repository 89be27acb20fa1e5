package account

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	suffixLen      = 8
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// maxUnbiased is the largest multiple of len(suffixAlphabet) not above 256.
	maxUnbiased = 256 - 256%len(suffixAlphabet)
)

// Reader is the randomness source for offline id suffixes.
var Reader io.Reader = rand.Reader

// NewOfflineID returns "offline-<username>-<suffix>" with an 8 character base36 suffix.
func NewOfflineID(username string) (string, error) {
	suffix, err := randomSuffix(Reader)
	if err != nil {
		return "", fmt.Errorf("generating offline id: %w", err)
	}
	return OfflinePrefix + username + "-" + suffix, nil
}

// randomSuffix draws suffixLen characters from suffixAlphabet.
// Bytes at or above maxUnbiased are discarded so every character is equally likely.
func randomSuffix(r io.Reader) (string, error) {
	out := make([]byte, 0, suffixLen)
	buf := make([]byte, suffixLen)
	for len(out) < suffixLen {
		chunk := buf[:suffixLen-len(out)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return "", err
		}
		for _, b := range chunk {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, suffixAlphabet[int(b)%len(suffixAlphabet)])
		}
	}
	return string(out), nil
}

// OfflineUUID derives a stable name-based UUID for an offline username,
// so the same username always maps to the same in-game identity.
func OfflineUUID(username string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(username)).String()
}
