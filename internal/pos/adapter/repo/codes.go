package repo

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomCodeGenerator issues fixed-width numeric codes from crypto/rand.
// The width leaves collision odds negligible at any realistic volume; the
// unique index on the code columns plus the orchestrator's retry covers
// the rest. This replaces the probe-then-insert loop of the legacy system.
type RandomCodeGenerator struct {
	Digits int
}

func NewRandomCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{Digits: 14}
}

func (g *RandomCodeGenerator) Next(ctx context.Context) (string, error) {
	digits := g.Digits
	if digits < 6 {
		digits = 6
	}

	// First digit nonzero so the code keeps its width as a number.
	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	out := make([]byte, digits)
	out[0] = byte('1' + first.Int64())
	for i := 1; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = byte('0' + n.Int64())
	}
	return string(out), nil
}
