package dispute

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSalt is returned for salts that are not valid hex.
var ErrBadSalt = errors.New("dispute: salt must be a hex string")

// CommitHash computes the commitment for a vote and salt:
// keccak256(voteByte || salt) where voteByte is 0x01 for release and 0x00
// for refund. Returned as a lowercase 0x-prefixed hex string.
func CommitHash(vote bool, salt string) (string, error) {
	saltBytes, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(salt), "0x"))
	if err != nil {
		return "", ErrBadSalt
	}
	voteByte := byte(0)
	if vote {
		voteByte = 1
	}
	sum := crypto.Keccak256(append([]byte{voteByte}, saltBytes...))
	return "0x" + hex.EncodeToString(sum), nil
}

// normalizeCommit lowercases and 0x-prefixes a commit hash for comparison.
func normalizeCommit(commit string) string {
	c := strings.ToLower(strings.TrimSpace(commit))
	if !strings.HasPrefix(c, "0x") {
		c = "0x" + c
	}
	return c
}
