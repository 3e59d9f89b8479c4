package models

import (
	"crypto/rand"
	"fmt"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const idLength = 12

// NewID returns a 12-character URL-safe identifier for users and library
// entries. Short enough for the client to embed in deep links, random
// enough (36^12) to be non-enumerable.
func NewID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no sane way to continue issuing IDs.
		panic(fmt.Sprintf("id generation: %v", err))
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
