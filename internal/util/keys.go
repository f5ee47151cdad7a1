package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EncodeName maps an arbitrary key string, including path-hostile
// characters, onto a deterministic safe filename.
func EncodeName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SplitKeyVersion splits the "name@version" key convention. Keys without
// the separator return version "". Only the last separator counts, so a
// name may itself contain '@'.
func SplitKeyVersion(key string) (name, version string) {
	i := strings.LastIndexByte(key, '@')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}
