package canonical

import (
	"crypto/sha256"
	"encoding/hex"
)

// RequestHash computes "sha256:"+hex(SHA256(canonical(v))) over v, the form
// used for request_hash and idempotency comparison (spec §4.1, §4.13).
func RequestHash(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return hashBytes(b), nil
}

// ArtifactHash computes the same digest as RequestHash but over the
// artifact payload with volatile fields excluded (spec §4.1).
func ArtifactHash(v interface{}, excludePaths ...string) (string, error) {
	b, err := MarshalExcluding(v, excludePaths...)
	if err != nil {
		return "", err
	}
	return hashBytes(b), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
