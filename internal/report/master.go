package report

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strconv"
	"strings"

	"enigh/domain/family"
	"enigh/internal/charts"
	"enigh/internal/dataset"
	"enigh/internal/integration"
)

// ChartKind is one of the chart types offered for the master dataset.
type ChartKind string

const (
	ChartScatter   ChartKind = "Dispersión"
	ChartBar       ChartKind = "Barras"
	ChartBox       ChartKind = "Boxplot"
	ChartHistogram ChartKind = "Histograma"
)

// ChartKinds lists the chart types in menu order.
var ChartKinds = []ChartKind{ChartScatter, ChartBar, ChartBox, ChartHistogram}

// Arity is the number of columns the chart takes.
func (k ChartKind) Arity() int {
	if k == ChartHistogram {
		return 1
	}
	return 2
}

// ParseChartKind maps user input to a ChartKind, falling back to scatter.
func ParseChartKind(raw string) (ChartKind, bool) {
	for _, k := range ChartKinds {
		if string(k) == raw {
			return k, true
		}
	}
	return ChartScatter, false
}

// DatasetOption is one file the master explorer can open.
type DatasetOption struct {
	Key   string
	Label string
	File  string
}

// Dataset keys of the master explorer.
const (
	DatasetSummary = "estructura"
	DatasetMaster  = "maestro"
)

// DatasetOptions lists the explorer files for the configured year.
func (s *Service) DatasetOptions() []DatasetOption {
	y := s.settings.Year
	return []DatasetOption{
		{Key: DatasetSummary, Label: fmt.Sprintf("Estructura Familiar %d", y), File: integration.SummaryFileName(y)},
		{Key: DatasetMaster, Label: fmt.Sprintf("Dataset Maestro ENIGH %d", y), File: integration.MasterFileName(y)},
	}
}

// Dataset resolves a dataset key, falling back to the first option.
func (s *Service) Dataset(key string) DatasetOption {
	opts := s.DatasetOptions()
	for _, o := range opts {
		if o.Key == key {
			return o
		}
	}
	return opts[0]
}

// MasterRequest is the state of the master explorer form.
type MasterRequest struct {
	Dataset string
	Kind    string
	// Columns are the chart variables: X, then Y for two-variable charts.
	Columns []string
}

// MasterView is the master-dataset explorer.
type MasterView struct {
	Datasets     []DatasetOption
	Dataset      DatasetOption
	Shape        Shape
	Preview      *dataset.Table
	Numeric      []string
	Kinds        []ChartKind
	Kind         ChartKind
	X, Y         string
	Chart        template.HTML
	Stats        []ColumnStats
	Distribution *family.Distribution
	Available    bool
	Messages     []Message
}

// Master builds the master explorer view.
func (s *Service) Master(src Source, req MasterRequest) *MasterView {
	v := &MasterView{
		Datasets: s.DatasetOptions(),
		Dataset:  s.Dataset(req.Dataset),
		Kinds:    ChartKinds,
	}
	v.Kind, _ = ParseChartKind(req.Kind)

	t, err := s.loadOutput(src, v.Dataset.File)
	if err != nil {
		v.Messages = append(v.Messages, failure(MsgNoMasterFile))
		return v
	}
	v.Available = true
	v.Shape = shapeOf(t)
	v.Preview = t.Head(PreviewRows)
	v.Numeric = t.NumericColumns()

	if dist, err := integration.DistributionOf(t); err == nil {
		v.Distribution = &dist
	}

	if len(v.Numeric) <= 1 {
		v.Messages = append(v.Messages, warning(MsgNotEnoughNumeric))
		return v
	}

	cols, msg := s.chartColumns(v.Kind, t, v.Numeric, req.Columns)
	if msg != nil {
		v.Messages = append(v.Messages, *msg)
		return v
	}
	v.X = cols[0]
	if len(cols) > 1 {
		v.Y = cols[1]
	}

	v.Stats = Describe(t, cols...)

	svg, notes, err := s.renderChart(t, v.Kind, cols)
	v.Messages = append(v.Messages, notes...)
	if err != nil {
		v.Messages = append(v.Messages, chartMessage(err))
		return v
	}
	v.Chart = template.HTML(svg)
	return v
}

// MasterTable returns the full table of a dataset key for download.
func (s *Service) MasterTable(src Source, key string) (*dataset.Table, DatasetOption, error) {
	opt := s.Dataset(key)
	t, err := s.loadOutput(src, opt.File)
	return t, opt, err
}

// chartColumns resolves the chart variables. Requested columns missing from
// the table count as unset, so a form still carrying the other dataset's
// choices falls back to defaults; unset slots take the first numeric columns
// not already chosen. Too many columns or a present but non-numeric column is
// reported instead.
func (s *Service) chartColumns(kind ChartKind, t *dataset.Table, numeric, requested []string) ([]string, *Message) {
	var given []string
	for _, c := range requested {
		given = append(given, strings.TrimSpace(c))
	}
	if len(given) > kind.Arity() {
		m := warning(fmt.Sprintf("La gráfica %s requiere %d variable(s); se recibieron %d.", kind, kind.Arity(), len(given)))
		return nil, &m
	}

	isNumeric := make(map[string]bool, len(numeric))
	for _, n := range numeric {
		isNumeric[n] = true
	}
	cols := make([]string, kind.Arity())
	chosen := make(map[string]bool, len(cols))
	for i, c := range given {
		if c == "" || !t.Has(c) {
			continue
		}
		if !isNumeric[c] {
			m := warning(fmt.Sprintf("La variable %q no es numérica.", c))
			return nil, &m
		}
		cols[i] = c
		chosen[c] = true
	}

	next := 0
	for i := range cols {
		if cols[i] != "" {
			continue
		}
		for next < len(numeric) && chosen[numeric[next]] {
			next++
		}
		if next == len(numeric) {
			m := warning(MsgNotEnoughNumeric)
			return nil, &m
		}
		cols[i] = numeric[next]
		chosen[cols[i]] = true
	}
	return cols, nil
}

func (s *Service) renderChart(t *dataset.Table, kind ChartKind, cols []string) ([]byte, []Message, error) {
	x, err := t.Floats(cols[0])
	if err != nil {
		return nil, nil, err
	}
	opts := charts.Options{XLabel: cols[0]}

	if kind == ChartHistogram {
		opts.Title = fmt.Sprintf("Histograma de %s", cols[0])
		opts.YLabel = "count"
		svg, err := charts.Histogram(x, charts.DefaultBins, opts)
		return svg, nil, err
	}

	y, err := t.Floats(cols[1])
	if err != nil {
		return nil, nil, err
	}
	opts.YLabel = cols[1]

	var notes []Message
	switch kind {
	case ChartScatter:
		opts.Title = fmt.Sprintf("%s vs %s", cols[1], cols[0])
		xs, ys, total := samplePairs(x, y, s.settings.MaxPoints)
		if len(xs) < total {
			notes = append(notes, info(fmt.Sprintf("Se muestran %d de %d puntos.", len(xs), total)))
		}
		svg, err := charts.Scatter(xs, ys, opts)
		return svg, notes, err

	case ChartBar:
		opts.Title = fmt.Sprintf("Promedio de %s por %s", cols[1], cols[0])
		labels, values, note := s.grouped(x, y)
		if note != nil {
			notes = append(notes, *note)
		}
		svg, err := charts.GroupedMeanBar(labels, values, opts)
		return svg, notes, err

	case ChartBox:
		opts.Title = fmt.Sprintf("Distribución de %s por %s", cols[1], cols[0])
		labels, values, note := s.grouped(x, y)
		if note != nil {
			notes = append(notes, *note)
		}
		svg, err := charts.Box(labels, values, opts)
		return svg, notes, err
	}
	return nil, nil, fmt.Errorf("unsupported chart %q", kind)
}

// samplePairs keeps the pairs with both values present and, beyond max, every
// stride-th of them so the result is the same on every request.
func samplePairs(x, y []float64, max int) ([]float64, []float64, int) {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	total := len(xs)
	if max <= 0 || total <= max {
		return xs, ys, total
	}
	stride := (total + max - 1) / max
	n := 0
	for i := 0; i < total; i += stride {
		xs[n], ys[n] = xs[i], ys[i]
		n++
	}
	return xs[:n], ys[:n], total
}

type valueGroup struct {
	key    float64
	values []float64
}

func (g valueGroup) label() string {
	return strconv.FormatFloat(g.key, 'g', -1, 64)
}

// groupBy collects y by distinct x, ordered by x. Rows with a missing x are
// dropped.
func groupBy(x, y []float64) []valueGroup {
	index := make(map[float64]int)
	var groups []valueGroup
	for i := range x {
		if math.IsNaN(x[i]) {
			continue
		}
		gi, ok := index[x[i]]
		if !ok {
			gi = len(groups)
			index[x[i]] = gi
			groups = append(groups, valueGroup{key: x[i]})
		}
		groups[gi].values = append(groups[gi].values, y[i])
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].key < groups[b].key })
	return groups
}

// grouped splits y by distinct x, keeping at most MaxCategories groups.
func (s *Service) grouped(x, y []float64) ([]string, [][]float64, *Message) {
	groups := groupBy(x, y)
	var note *Message
	if max := s.settings.MaxCategories; len(groups) > max {
		m := info(fmt.Sprintf("Se muestran las primeras %d de %d categorías.", max, len(groups)))
		note = &m
		groups = groups[:max]
	}
	labels := make([]string, len(groups))
	values := make([][]float64, len(groups))
	for i, g := range groups {
		labels[i] = g.label()
		values[i] = g.values
	}
	return labels, values, note
}
