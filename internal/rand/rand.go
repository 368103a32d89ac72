// Package rand generates the short request ids attached to endpoint calls.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var source = newSource()

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource() *lockedSource {
	seed := make([]byte, 16)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}

	return &lockedSource{
		//nolint:gosec // request ids are not security sensitive
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

// NewRequestID returns a base62 string of the given length.
func NewRequestID(length int) string {
	buf := make([]byte, length)

	source.mu.Lock()
	for i := range buf {
		buf[i] = charset[source.rng.IntN(len(charset))]
	}
	source.mu.Unlock()

	return string(buf)
}
