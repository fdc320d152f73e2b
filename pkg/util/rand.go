package util

import (
	"math/rand/v2"
)

const (
	// Seed range mirrors what the sampler expects: a 16-digit value.
	randomSeedMin = 1_000_000_000_000_000
	randomSeedMax = 10_000_000_000_000_000

	// SeedSentinel in a job request means "draw a fresh random seed".
	SeedSentinel = -1
)

const randStringCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomSeed draws a sampler seed uniformly from [10^15, 10^16-1].
func GenerateRandomSeed() int64 {
	return randomSeedMin + rand.Int64N(randomSeedMax-randomSeedMin)
}

// ResolveSeed replaces the sentinel with a fresh random seed and passes any
// other value through unchanged.
func ResolveSeed(seed int64) int64 {
	if seed == SeedSentinel {
		return GenerateRandomSeed()
	}
	return seed
}

// GenerateRandStringWithUpperLowerNum returns a random alphanumeric token,
// used to keep staged file names distinct across downloads.
func GenerateRandStringWithUpperLowerNum(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randStringCharset[rand.IntN(len(randStringCharset))]
	}
	return string(b)
}
