// internal/rng/rng.go
package rng

import (
	"crypto/rand"
	"math/big"
)

// Generator provides a simple random number source.
type Generator interface {
	// Intn returns a random number in [0, n).
	Intn(n int) int
}

// Crypto is a Generator backed by crypto/rand.
type Crypto struct{}

// Intn returns a uniformly distributed number in [0, n).
func (Crypto) Intn(n int) int {
	b, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(b.Int64())
}

// Shuffle performs a Fisher-Yates shuffle of n elements using g.
func Shuffle(g Generator, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := g.Intn(i + 1)
		swap(i, j)
	}
}
