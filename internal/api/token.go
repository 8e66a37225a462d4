package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// cleanupTokenLen is the derived token length in bytes (hex-encoded on the
// wire).
const cleanupTokenLen = 16

// deriveCleanupToken derives a per-turn cleanup token from the server's
// secret. Anyone holding the secret can recompute the token for any turn id,
// so operators never need to persist tokens; clients get theirs in the run
// response. This is not authentication — it only guards the destructive
// cleanup verb against accidental cross-client collisions.
func deriveCleanupToken(secret []byte, turnID string) string {
	r := hkdf.New(sha256.New, secret, nil, []byte("turnengine-cleanup|"+turnID))
	token := make([]byte, cleanupTokenLen)
	if _, err := io.ReadFull(r, token); err != nil {
		// hkdf only errors when asked for more than 255*hashLen bytes.
		return ""
	}
	return hex.EncodeToString(token)
}

// verifyCleanupToken compares a presented token against the derived one in
// constant time.
func verifyCleanupToken(secret []byte, turnID, presented string) bool {
	expected := deriveCleanupToken(secret, turnID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
