package charts

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSVG(t *testing.T, out []byte) {
	t.Helper()
	require.NotEmpty(t, out)
	assert.True(t, strings.Contains(string(out), "<svg"), "output is svg")
}

func TestBar(t *testing.T) {
	out, err := Bar([]string{"PC1", "PC2", "PC3"}, []float64{0.4, math.NaN(), 0.2}, Options{Title: "Varianza explicada"})
	require.NoError(t, err)
	assertSVG(t, out)
	assert.Contains(t, string(out), "Varianza explicada")
}

func TestLine(t *testing.T) {
	out, err := Line([]string{"PC1", "PC2"}, []float64{0.4, 0.6}, Options{Title: "Varianza acumulada"})
	require.NoError(t, err)
	assertSVG(t, out)
}

func TestScatter_SkipsMissingPairs(t *testing.T) {
	out, err := Scatter([]float64{1, 2, math.NaN()}, []float64{3, math.NaN(), 5}, Options{})
	require.NoError(t, err)
	assertSVG(t, out)

	_, err = Scatter([]float64{math.NaN()}, []float64{1}, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBox(t *testing.T) {
	out, err := Box([]string{"FA", "MP", "empty"}, [][]float64{{1, 2, 3, 4}, {2, 5, 9}, {math.NaN()}}, Options{})
	require.NoError(t, err)
	assertSVG(t, out)

	_, err = Box([]string{"a"}, [][]float64{{}}, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestHistogram(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i % 17)
	}
	out, err := Histogram(values, 0, Options{Title: "edad_jefe"})
	require.NoError(t, err)
	assertSVG(t, out)

	out, err = Histogram([]float64{3, 3, 3}, 30, Options{})
	require.NoError(t, err, "a constant column still renders")
	assertSVG(t, out)
}

func TestNoData(t *testing.T) {
	_, err := Bar(nil, nil, Options{})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Line([]string{"a"}, []float64{math.Inf(1)}, Options{})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Histogram([]float64{math.NaN()}, 10, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGroupedMeanBar(t *testing.T) {
	out, err := GroupedMeanBar([]string{"1", "2", "3"}, [][]float64{{1, 3}, {math.NaN()}, {4}}, Options{Title: "Promedio"})
	require.NoError(t, err)
	assertSVG(t, out)

	_, err = GroupedMeanBar([]string{"1"}, [][]float64{{math.NaN()}}, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}
