// Package rng provides the cryptographically secure randomness the game
// package needs to shuffle seat order fairly: an AES-CTR counter-mode
// generator seeded from the platform CSPRNG, plus an audit log of each
// shuffle so a disputed seat order can be reconstructed after the fact.
package rng

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// System generates random values by running an AES-256 block cipher in
// counter mode, reseeded from crypto/rand at construction.
type System struct {
	cipher  cipher.Block
	counter uint64
	mu      sync.Mutex
	audit   *AuditLogger
}

// NewSystem returns a System seeded from the platform CSPRNG. audit may be
// nil; System stores it but never logs through it.
func NewSystem(audit *AuditLogger) (*System, error) {
	seed, err := hardwareSeed(32)
	if err != nil {
		return nil, fmt.Errorf("rng: seed: %w", err)
	}
	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, fmt.Errorf("rng: cipher: %w", err)
	}
	return &System{cipher: block, audit: audit}, nil
}

// NewSystemWithSeed builds a System from an explicit seed, expanding or
// truncating it to 32 bytes via SHA-256 as needed. Used by tests that need
// a fixed key. Output is not reproducible: every block also mixes in the
// wall-clock time.
func NewSystemWithSeed(seed []byte, audit *AuditLogger) (*System, error) {
	if len(seed) != 32 {
		hash := sha256.Sum256(seed)
		seed = hash[:]
	}
	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, fmt.Errorf("rng: cipher: %w", err)
	}
	return &System{cipher: block, audit: audit}, nil
}

func hardwareSeed(n int) ([]byte, error) {
	seed := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// RandomUint64 returns the next counter-mode output as a uint64.
func (s *System) RandomUint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	counterBytes := make([]byte, 16)
	binary.BigEndian.PutUint64(counterBytes[:8], s.counter)
	binary.BigEndian.PutUint64(counterBytes[8:], uint64(time.Now().UnixNano()))

	output := make([]byte, 16)
	s.cipher.Encrypt(output, counterBytes)
	s.counter++

	return binary.BigEndian.Uint64(output[:8])
}

// RandomInt returns a random int in [0, max). Returns 0 if max <= 0.
func (s *System) RandomInt(max int) int {
	if max <= 0 {
		return 0
	}
	return int(s.RandomUint64() % uint64(max))
}

// AuditLogger records seat-shuffle events. In this reference
// implementation it logs to stdout; a production deployment would instead
// append to a durable audit table.
type AuditLogger struct {
	enabled bool
}

// NewAuditLogger returns an enabled AuditLogger.
func NewAuditLogger() *AuditLogger { return &AuditLogger{enabled: true} }

// LogSeatShuffle records a completed shuffle.
func (a *AuditLogger) LogSeatShuffle(event *SeatShuffleAuditEvent) {
	if a == nil || !a.enabled {
		return
	}
	fmt.Printf("RNG_AUDIT: %+v\n", event)
}

// SeatShuffleAuditEvent records one seat-order shuffle for a game, so a
// disputed turn order can be reconstructed from the log.
type SeatShuffleAuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	GameID        string    `json:"game_id"`
	RuleSetID     string    `json:"rule_set_id"`
	SeedHash      string    `json:"seed_hash"` // SHA-256 of 32 bytes drawn from the generator when the entry is built
	PlayersBefore []string  `json:"players_before"`
	PlayersAfter  []string  `json:"players_after"`
	Algorithm     string    `json:"algorithm"` // "Fisher-Yates"
	PRNG          string    `json:"prng"`      // "AES-CTR-256"
}

// CreateAuditEntry builds the audit record for a completed shuffle, mixing
// fresh entropy into the seed hash so repeated shuffles of the same roster
// don't produce identical audit fingerprints.
func (s *System) CreateAuditEntry(gameID, ruleSetID string, before, after []string) *SeatShuffleAuditEvent {
	salt := make([]byte, 32)
	for i := 0; i < len(salt); i += 8 {
		binary.BigEndian.PutUint64(salt[i:], s.RandomUint64())
	}
	hash := sha256.Sum256(salt)

	return &SeatShuffleAuditEvent{
		Timestamp:     time.Now().UTC(),
		GameID:        gameID,
		RuleSetID:     ruleSetID,
		SeedHash:      fmt.Sprintf("%x", hash[:]),
		PlayersBefore: append([]string(nil), before...),
		PlayersAfter:  append([]string(nil), after...),
		Algorithm:     "Fisher-Yates",
		PRNG:          "AES-CTR-256",
	}
}
