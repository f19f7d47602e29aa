package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name        string
		part, whole float64
		want        float64
	}{
		{name: "funnel drop off", part: 8243 - 3421, whole: 8243, want: 58.5},
		{name: "funnel progress", part: 3421, whole: 8243, want: 41.5},
		{name: "all", part: 10, whole: 10, want: 100},
		{name: "zero whole", part: 5, whole: 0, want: 0},
		{name: "negative change", part: -25, whole: 100, want: -25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Percent(tc.part, tc.whole))
		})
	}
}

func TestRoundAndMean(t *testing.T) {
	require.Equal(t, 58.5, Round(58.45, 1))
	require.Equal(t, 3.0, Round(2.5, 0))
	require.Equal(t, 0.0, Mean(nil))
	require.Equal(t, 2.5, Mean([]float64{1, 2, 3, 4}))
}
