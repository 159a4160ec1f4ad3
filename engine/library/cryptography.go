package library

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Sum returns the hex sha256 of data.
func Sha256Sum[T string | []byte](data T) Sha256 {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
