package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float32
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 1}, b: []float32{3, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 0}, wantErr: true},
		{name: "empty", a: nil, b: []float32{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)

	d, err = CosineDistance([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-6)

	d, err = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-6)

	_, err = CosineDistance([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}
