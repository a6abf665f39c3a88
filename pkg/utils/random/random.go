package random

import (
	"crypto/rand"
	"math/big"
)

const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Code returns a human-friendly code without ambiguous glyphs.
func Code(length int) string {
	if length <= 0 {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = letters[Intn(len(letters))]
	}
	return string(out)
}

// Intn returns a uniform value in [0, n) from crypto/rand.
func Intn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("random: crypto source unavailable: " + err.Error())
	}
	return int(v.Int64())
}

// Shuffle performs a Fisher-Yates shuffle driven by crypto/rand.
func Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, Intn(i+1))
	}
}
