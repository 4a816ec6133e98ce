// Package random provides seeded randomness for tests. Set
// PROCSTREAM_RANDOM_SEED to replay a failing run.
package random

import (
	"math/rand"
	"os"
	"strconv"
	"time"
)

// argumentAlphabet leans on the characters the command-line quoter treats
// specially so that generated arguments exercise its edge cases.
var argumentAlphabet = []rune{'a', 'b', 'z', '0', ' ', ' ', '\t', '\\', '\\', '\\', '"', '"', ':', '/', '-', 'é'}

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// Init seeds the generator from PROCSTREAM_RANDOM_SEED, falling back to the
// current time.
func Init() {
	seed := time.Now().UnixNano()

	if seedString := os.Getenv("PROCSTREAM_RANDOM_SEED"); seedString != "" {
		parsed, err := strconv.ParseInt(seedString, 10, 64)
		if err != nil {
			panic("procstream internal error - PROCSTREAM_RANDOM_SEED is not an integer")
		}
		seed = parsed
	}

	rng = rand.New(rand.NewSource(seed))
}

// RandomInt returns a random integer in [min, max).
func RandomInt(min, max int) int {
	return rng.Intn(max-min) + min
}

// RandomArgument returns a command-line argument of up to maxLength runes,
// biased towards whitespace, backslashes and double quotes. It may be empty.
func RandomArgument(maxLength int) string {
	length := RandomInt(0, maxLength+1)
	runes := make([]rune, length)
	for i := range runes {
		runes[i] = argumentAlphabet[rng.Intn(len(argumentAlphabet))]
	}
	return string(runes)
}

// RandomBytes returns n random bytes.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}
