package report

import (
	"math"

	"enigh/internal/dataset"

	"github.com/montanaflynn/stats"
)

// ColumnStats is the descriptive summary of one numeric column. Fields other
// than Count are NaN when the column has no values.
type ColumnStats struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// Describe summarises the named columns, skipping missing cells. Columns that
// are absent from t are left out.
func Describe(t *dataset.Table, columns ...string) []ColumnStats {
	out := make([]ColumnStats, 0, len(columns))
	for _, c := range columns {
		values, err := t.Floats(c)
		if err != nil {
			continue
		}
		out = append(out, describe(c, values))
	}
	return out
}

func describe(column string, values []float64) ColumnStats {
	var data stats.Float64Data
	for _, v := range values {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}

	nan := math.NaN()
	cs := ColumnStats{Column: column, Count: len(data),
		Mean: nan, Std: nan, Min: nan, Q25: nan, Median: nan, Q75: nan, Max: nan}
	if len(data) == 0 {
		return cs
	}

	cs.Mean, _ = stats.Mean(data)
	cs.Min, _ = stats.Min(data)
	cs.Max, _ = stats.Max(data)
	cs.Median, _ = stats.Median(data)
	cs.Q25, _ = stats.Percentile(data, 25)
	cs.Q75, _ = stats.Percentile(data, 75)
	if len(data) > 1 {
		cs.Std, _ = stats.StandardDeviationSample(data)
	}
	return cs
}
