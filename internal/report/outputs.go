package report

import (
	stderrors "errors"
	"fmt"
	"html/template"
	"math"

	"enigh/internal/charts"
	"enigh/internal/dataset"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
)

// Columns of the variance and centrality tables.
const (
	ColComponent  = "Componente"
	ColExplained  = "Varianza_explicada"
	ColCumulative = "Varianza_acumulada"
	ColVariable   = "variable"
)

// TopN is the size of the centrality ranking.
const TopN = 10

// TableView is a shape plus a preview, used by the prepared-data tab.
type TableView struct {
	Shape    Shape
	Preview  *dataset.Table
	Messages []Message
}

// Prepared shows the data prepared for PCA.
func (s *Service) Prepared(src Source) *TableView {
	t, err := s.loadOutput(src, PreparedFile)
	if err != nil {
		return &TableView{Messages: []Message{warning(MsgNoPrepared)}}
	}
	return &TableView{Shape: shapeOf(t), Preview: t.Head(PreviewRows)}
}

// PCAView holds the explained-variance charts.
type PCAView struct {
	Components      []string
	Explained       []float64
	Cumulative      []float64
	ExplainedChart  template.HTML
	CumulativeChart template.HTML
	Loadings        *dataset.Table
	Messages        []Message
}

// PCA builds the variance view. When the cumulative column is absent it is
// derived from the explained variance.
func (s *Service) PCA(src Source) *PCAView {
	v := &PCAView{}
	t, err := s.loadOutput(src, VarianceFile)
	if err != nil || !t.Has(ColComponent, ColExplained) || len(t.Rows) == 0 {
		v.Messages = append(v.Messages, warning(MsgNoPCA))
		return v
	}

	types := map[string]series.Type{
		ColComponent:  series.String,
		ColExplained:  series.Float,
		ColCumulative: series.Float,
	}
	df := dataframe.LoadRecords(t.Records(), dataframe.WithTypes(types))
	if df.Err != nil {
		s.logger.Warn().Err(df.Err).Msg("failed to load variance table")
		v.Messages = append(v.Messages, warning(MsgNoPCA))
		return v
	}

	v.Components = df.Col(ColComponent).Records()
	v.Explained = df.Col(ColExplained).Float()
	if t.Has(ColCumulative) {
		v.Cumulative = df.Col(ColCumulative).Float()
	} else {
		v.Cumulative = cumulative(v.Explained)
	}

	if svg, err := charts.Bar(v.Components, v.Explained, charts.Options{
		Title: "Varianza explicada por componente", XLabel: ColComponent, YLabel: ColExplained,
	}); err == nil {
		v.ExplainedChart = template.HTML(svg)
	} else {
		v.Messages = append(v.Messages, chartMessage(err))
	}

	if svg, err := charts.Line(v.Components, v.Cumulative, charts.Options{
		Title: "Varianza acumulada", XLabel: ColComponent, YLabel: ColCumulative,
	}); err == nil {
		v.CumulativeChart = template.HTML(svg)
	} else {
		v.Messages = append(v.Messages, chartMessage(err))
	}

	if loadings, err := s.loadOutput(src, ComponentsFile); err == nil {
		v.Loadings = loadings.Head(PreviewRows)
	}
	return v
}

// NetworkView summarises the variable network.
type NetworkView struct {
	Nodes       int
	Edges       int
	EdgePreview *dataset.Table
	Messages    []Message
}

// Network counts nodes and edges and previews the edge list.
func (s *Service) Network(src Source) *NetworkView {
	nodes, errNodes := s.loadOutput(src, NodesFile)
	edges, errEdges := s.loadOutput(src, EdgesFile)
	if errNodes != nil || errEdges != nil {
		return &NetworkView{Messages: []Message{warning(MsgNoNetwork)}}
	}
	return &NetworkView{
		Nodes:       len(nodes.Rows),
		Edges:       len(edges.Rows),
		EdgePreview: edges.Head(PreviewRows),
	}
}

// Metric is a centrality measure of the ranking.
type Metric string

const (
	Degree      Metric = "grado"
	Betweenness Metric = "betweenness"
	Closeness   Metric = "closeness"
)

// Metrics lists the selectable measures in menu order.
var Metrics = []Metric{Degree, Betweenness, Closeness}

// ParseMetric maps user input to a Metric, falling back to Degree.
func ParseMetric(raw string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == raw {
			return m, true
		}
	}
	return Degree, false
}

// Ranked is one row of the centrality ranking.
type Ranked struct {
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
}

// CentralityView is the top-N centrality ranking.
type CentralityView struct {
	Metric   Metric
	Metrics  []Metric
	Title    string
	Top      []Ranked
	Chart    template.HTML
	Messages []Message
}

// CentralityTitle is the chart title for a metric.
func CentralityTitle(m Metric) string {
	return fmt.Sprintf("Top %d Variables por %s", TopN, m)
}

// Centrality ranks the variables by the metric, descending, keeping at most
// TopN rows.
func (s *Service) Centrality(src Source, metric Metric) *CentralityView {
	v := &CentralityView{Metric: metric, Metrics: Metrics, Title: CentralityTitle(metric)}

	top, err := s.TopCentrality(src, metric, TopN)
	if err != nil {
		v.Messages = append(v.Messages, warning(MsgNoCentrality))
		return v
	}
	v.Top = top

	labels := make([]string, len(top))
	values := make([]float64, len(top))
	for i, r := range top {
		labels[i] = r.Variable
		values[i] = r.Value
	}
	svg, err := charts.Bar(labels, values, charts.Options{Title: v.Title, XLabel: ColVariable, YLabel: string(metric)})
	if err != nil {
		v.Messages = append(v.Messages, chartMessage(err))
		return v
	}
	v.Chart = template.HTML(svg)
	return v
}

// TopCentrality returns the n highest-ranked variables for the metric. Rows
// without a value sort last and are left out.
func (s *Service) TopCentrality(src Source, metric Metric, n int) ([]Ranked, error) {
	t, err := s.loadOutput(src, CentralityFile)
	if err != nil {
		return nil, err
	}
	if !t.Has(ColVariable, string(metric)) {
		return nil, fmt.Errorf("%s lacks %s or %s", CentralityFile, ColVariable, metric)
	}
	if len(t.Rows) == 0 || n <= 0 {
		return []Ranked{}, nil
	}

	df := dataframe.LoadRecords(t.Records(), dataframe.WithTypes(map[string]series.Type{
		ColVariable:    series.String,
		string(metric): series.Float,
	}))
	sorted := df.Arrange(dataframe.RevSort(string(metric)))
	if sorted.Err != nil {
		return nil, sorted.Err
	}

	if n > sorted.Nrow() {
		n = sorted.Nrow()
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	head := sorted.Subset(idx)
	if head.Err != nil {
		return nil, head.Err
	}

	names := head.Col(ColVariable).Records()
	values := head.Col(string(metric)).Float()
	out := make([]Ranked, 0, n)
	for i := range names {
		if math.IsNaN(values[i]) {
			break
		}
		out = append(out, Ranked{Variable: names[i], Value: values[i]})
	}
	return out, nil
}

func chartMessage(err error) Message {
	if stderrors.Is(err, charts.ErrNoData) {
		return warning(MsgNoPlottable)
	}
	return failure(fmt.Sprintf("No se pudo generar la gráfica: %v", err))
}

// cumulative is the running sum of values. Missing values stay missing and do
// not interrupt the sum.
func cumulative(values []float64) []float64 {
	present := make([]float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			present[i] = v
		}
	}
	out := floats.CumSum(make([]float64, len(values)), present)
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
		}
	}
	return out
}
