package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrypto_Intn(t *testing.T) {
	a := assert.New(t)

	c := Crypto{}
	found := make(map[int]bool)
	// it's possible this could fail, but not likely
	for i := 0; i < 1000; i++ {
		found[c.Intn(5)] = true
	}

	for i := 0; i < 5; i++ {
		a.True(found[i])
	}
	a.False(found[5])
}

type fixed int

func (f fixed) Intn(n int) int {
	return int(f) % n
}

func TestShuffle(t *testing.T) {
	a := assert.New(t)

	items := []int{1, 2, 3, 4, 5}
	Shuffle(fixed(0), len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})

	a.ElementsMatch([]int{1, 2, 3, 4, 5}, items)
	a.Equal([]int{2, 3, 4, 5, 1}, items)
}
