package random

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device not ready")
}

func TestCryptoSource_Uniform(t *testing.T) {
	src := NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v, err := src.Uniform()
		require.NoError(t, err)
		if v < 0 || v >= 1 {
			t.Fatalf("sample %v outside [0, 1)", v)
		}
	}
}

func TestCryptoSource_EntropyUnavailable(t *testing.T) {
	t.Run("reader error", func(t *testing.T) {
		_, err := NewCryptoSourceFromReader(failingReader{}).Uniform()
		assert.ErrorIs(t, err, ErrEntropyUnavailable)
	})

	t.Run("no reader", func(t *testing.T) {
		_, err := NewCryptoSourceFromReader(nil).Uniform()
		assert.ErrorIs(t, err, ErrEntropyUnavailable)
	})
}

func TestFixed(t *testing.T) {
	src, err := NewFixed(0.1, 0.65)
	require.NoError(t, err)

	for _, want := range []float64{0.1, 0.65, 0.65} {
		got, err := src.Uniform()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = NewFixed(1.0)
	assert.Error(t, err)
	_, err = NewFixed()
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	tests := []struct {
		sample float64
		size   int
		want   int
	}{
		{0, 10, 0},
		{0.65, 10, 6},
		{0.999999999, 10, 9},
		{0.5, 1, 0},
		{math.Nextafter(1, 0), 3, 2},
	}
	for _, tt := range tests {
		got, err := Index(tt.sample, tt.size)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Index(%v, %d)", tt.sample, tt.size)
	}

	_, err := Index(0.5, 0)
	assert.Error(t, err)
	_, err = Index(1, 5)
	assert.Error(t, err)
}

func TestIndexMatchesFloor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("index is floor(sample * size) and in range", prop.ForAll(
		func(sample float64, size int) bool {
			idx, err := Index(sample, size)
			if err != nil {
				return false
			}
			return idx == int(math.Floor(sample*float64(size))) && idx >= 0 && idx < size
		},
		gen.Float64Range(0, 0.999999),
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t)
}

// TestCryptoSource_Distribution is a chi-square test over 10 buckets. The
// critical value for 9 degrees of freedom at p=0.001 is 27.88.
func TestCryptoSource_Distribution(t *testing.T) {
	const (
		buckets = 10
		trials  = 100000
	)
	src := NewCryptoSource()
	counts := make([]int, buckets)
	for i := 0; i < trials; i++ {
		v, err := src.Uniform()
		require.NoError(t, err)
		idx, err := Index(v, buckets)
		require.NoError(t, err)
		counts[idx]++
	}

	expected := float64(trials) / buckets
	chi := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}
	if chi > 27.88 {
		t.Errorf("distribution not uniform: chi-square %.2f, counts %v", chi, counts)
	}
}
