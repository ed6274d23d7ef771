// Package engine draws coin outcomes from an HMAC-SHA256 stream.
//
// A flipper is keyed by a secret server seed and a public client seed. Every flip uses a
// fresh nonce, so outcomes are independent and uniformly distributed, and a day's flips can
// be re-derived once the server seed is revealed.
package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Side is one face of the coin.
type Side string

const (
	Heads Side = "heads"
	Tails Side = "tails"
)

// ParseSide accepts "heads"/"tails" and the shorthands "h"/"t", case-insensitively.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heads", "h":
		return Heads, nil
	case "tails", "t":
		return Tails, nil
	default:
		return "", fmt.Errorf("engine: unknown side %q", s)
	}
}

// Valid reports whether s is heads or tails.
func (s Side) Valid() bool {
	return s == Heads || s == Tails
}

// Flipper draws one coin outcome per call.
type Flipper interface {
	Flip() Side
}

// SeededFlipper is a deterministic Flipper. Flip n uses nonce n.
type SeededFlipper struct {
	serverSeed string
	clientSeed string

	mu    sync.Mutex
	nonce uint64
}

// NewSeededFlipper creates a flipper starting at nonce 0.
func NewSeededFlipper(serverSeed, clientSeed string) *SeededFlipper {
	return &SeededFlipper{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
	}
}

// NewRandomFlipper creates a flipper with a random 32-byte server seed and a uuid client seed.
func NewRandomFlipper() (*SeededFlipper, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("engine: read server seed: %w", err)
	}
	return NewSeededFlipper(hex.EncodeToString(seed[:]), uuid.NewString()), nil
}

// Flip draws the next outcome. Floats below 0.5 are heads.
func (f *SeededFlipper) Flip() Side {
	f.mu.Lock()
	nonce := f.nonce
	f.nonce++
	f.mu.Unlock()

	if Float(f.serverSeed, f.clientSeed, nonce) < 0.5 {
		return Heads
	}
	return Tails
}

// Nonce returns the number of flips drawn so far.
func (f *SeededFlipper) Nonce() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce
}

// ClientSeed returns the public half of the key.
func (f *SeededFlipper) ClientSeed() string {
	return f.clientSeed
}

// ServerSeedHash returns the SHA-256 commitment to the server seed.
func (f *SeededFlipper) ServerSeedHash() string {
	hash := sha256.Sum256([]byte(f.serverSeed))
	return hex.EncodeToString(hash[:])
}

// Replay re-derives the first n outcomes for the given seeds.
func Replay(serverSeed, clientSeed string, n int) []Side {
	f := NewSeededFlipper(serverSeed, clientSeed)
	out := make([]Side, n)
	for i := range out {
		out[i] = f.Flip()
	}
	return out
}
