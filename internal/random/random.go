// Package random provides the uniform samples that decide raffle draws.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrEntropyUnavailable is returned when the cryptographic generator cannot
// be read. Callers must abort the draw; there is no weaker fallback.
var ErrEntropyUnavailable = errors.New("cryptographic entropy unavailable")

// Source yields uniform samples in [0, 1).
type Source interface {
	Uniform() (float64, error)
}

// CryptoSource reads from the operating system CSPRNG.
type CryptoSource struct {
	reader io.Reader
}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() *CryptoSource {
	return &CryptoSource{reader: rand.Reader}
}

// NewCryptoSourceFromReader wraps an arbitrary entropy reader.
func NewCryptoSourceFromReader(r io.Reader) *CryptoSource {
	return &CryptoSource{reader: r}
}

// Uniform returns a float in [0, 1) built from 53 random bits, the full
// precision of a float64 mantissa.
func (s *CryptoSource) Uniform() (float64, error) {
	if s == nil || s.reader == nil {
		return 0, ErrEntropyUnavailable
	}
	var buf [8]byte
	if _, err := io.ReadFull(s.reader, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	bits := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(bits) / (1 << 53), nil
}

// Fixed is a deterministic Source that replays the given samples in order
// and then keeps returning the last one.
type Fixed struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

// NewFixed returns a deterministic Source. Every sample must lie in [0, 1).
func NewFixed(samples ...float64) (*Fixed, error) {
	if len(samples) == 0 {
		return nil, errors.New("fixed source needs at least one sample")
	}
	for _, s := range samples {
		if s < 0 || s >= 1 {
			return nil, fmt.Errorf("sample %v outside [0, 1)", s)
		}
	}
	return &Fixed{samples: samples}, nil
}

func (f *Fixed) Uniform() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.samples[f.next]
	if f.next < len(f.samples)-1 {
		f.next++
	}
	return s, nil
}

// Index maps a sample in [0, 1) onto a pool of the given size as
// floor(sample * size). The result is clamped to the last slot to absorb
// float rounding at the upper edge.
func Index(sample float64, size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if sample < 0 || sample >= 1 {
		return 0, fmt.Errorf("sample %v outside [0, 1)", sample)
	}
	idx := int(sample * float64(size))
	if idx >= size {
		idx = size - 1
	}
	return idx, nil
}
