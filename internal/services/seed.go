package services

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gtank/cryptopasta"
)

const (
	seedSeparator = "|"
	sealedPrefix  = "sealed:"
)

// Seed is a parsed draw seed. Immediate draws carry only Sample; committed
// seeds also bind the scheduled draw time and the raffle.
type Seed struct {
	Raw      string
	Sample   float64
	DrawTime time.Time
	RaffleID string
}

// FormatSample renders a sample so that parsing it back yields the same float.
func FormatSample(sample float64) string {
	return strconv.FormatFloat(sample, 'g', -1, 64)
}

func committedSeed(sample float64, drawTime time.Time, raffleID string) string {
	return strings.Join([]string{
		FormatSample(sample),
		strconv.FormatInt(drawTime.UnixMilli(), 10),
		raffleID,
	}, seedSeparator)
}

// ParseSeed accepts both "<sample>" and "<sample>|<unixMillis>|<raffleID>".
func ParseSeed(raw string) (Seed, error) {
	parts := strings.Split(raw, seedSeparator)
	if len(parts) != 1 && len(parts) != 3 {
		return Seed{}, fmt.Errorf("seed %q: unexpected format", raw)
	}
	sample, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Seed{}, fmt.Errorf("seed %q: %w", raw, err)
	}
	if sample < 0 || sample >= 1 {
		return Seed{}, fmt.Errorf("seed %q: sample outside [0, 1)", raw)
	}
	s := Seed{Raw: raw, Sample: sample}
	if len(parts) == 3 {
		millis, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Seed{}, fmt.Errorf("seed %q: %w", raw, err)
		}
		s.DrawTime = time.UnixMilli(millis).UTC()
		s.RaffleID = parts[2]
	}
	return s, nil
}

// SeedSealer encrypts commitment seeds at rest with AES-256-GCM. A nil
// sealer stores seeds in plaintext.
type SeedSealer struct {
	key *[32]byte
}

var ErrSealingKeyRequired = errors.New("sealed seed found but no sealing key configured")

// NewSeedSealer parses a hex encoded 32-byte key. An empty key returns a nil
// sealer.
func NewSeedSealer(hexKey string) (*SeedSealer, error) {
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("seed sealing key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("seed sealing key must be 32 bytes, got %d", len(raw))
	}
	return &SeedSealer{key: (*[32]byte)(raw)}, nil
}

// NewSealingKey returns a fresh hex encoded key.
func NewSealingKey() string {
	return hex.EncodeToString(cryptopasta.NewEncryptionKey()[:])
}

func (s *SeedSealer) Seal(seed string) (string, error) {
	if s == nil {
		return seed, nil
	}
	ciphertext, err := cryptopasta.Encrypt([]byte(seed), s.key)
	if err != nil {
		return "", fmt.Errorf("seal seed: %w", err)
	}
	return sealedPrefix + hex.EncodeToString(ciphertext), nil
}

func (s *SeedSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", ErrSealingKeyRequired
	}
	ciphertext, err := hex.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("open seed: %w", err)
	}
	plaintext, err := cryptopasta.Decrypt(ciphertext, s.key)
	if err != nil {
		return "", fmt.Errorf("open seed: %w", err)
	}
	return string(plaintext), nil
}
