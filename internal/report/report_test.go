package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"enigh/domain/family"
	"enigh/internal/errors"
	"enigh/internal/tablecache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fixtureSummary = `folioviv,foliohog,pareja,hijos,otros_adultos,sexo_jefe,edad_jefe,estructura_familiar
100000001,1,1,1,0,1,50,MP
100000001,2,0,0,1,,,MA
0100000002,1,0,1,0,2,45,FC
100000003,1,0,0,0,2,70,FA
`
	fixtureVariance = `Componente,Varianza_explicada
PC1,0.5
PC2,0.3
PC3,0.2
`
	fixtureNodes = `variable
a
b
c
`
	fixtureEdges = `source,target,weight
a,b,0.9
b,c,0.7
`
)

type fixture struct {
	svc  *Service
	src  *tablecache.Cache
	data string
	outs string
}

func newFixture(t *testing.T, settings Settings, outputs map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		data: filepath.Join(root, "ENIGH"),
		outs: filepath.Join(root, "outputs"),
		src:  tablecache.New(nil, nil),
	}
	require.NoError(t, os.MkdirAll(f.outs, 0o755))
	for name, body := range outputs {
		require.NoError(t, os.WriteFile(filepath.Join(f.outs, name), []byte(body), 0o644))
	}
	settings.DataRoot = f.data
	settings.OutputsRoot = f.outs
	if settings.Year == 0 {
		settings.Year = 2024
	}
	f.svc = NewService(settings)
	return f
}

func (f *fixture) writeBase(t *testing.T, year, name, body string) {
	t.Helper()
	dir := filepath.Join(f.data, year)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestViews_WarnWhenFilesAreMissing(t *testing.T) {
	f := newFixture(t, Settings{}, nil)

	assert.Equal(t, []Message{warning(MsgNoPrepared)}, f.svc.Prepared(f.src).Messages)
	assert.Equal(t, []Message{warning(MsgNoPCA)}, f.svc.PCA(f.src).Messages)
	assert.Equal(t, []Message{warning(MsgNoNetwork)}, f.svc.Network(f.src).Messages)
	assert.Equal(t, []Message{warning(MsgNoCentrality)}, f.svc.Centrality(f.src, Degree).Messages)

	m := f.svc.Master(f.src, MasterRequest{})
	assert.False(t, m.Available)
	assert.Equal(t, []Message{failure(MsgNoMasterFile)}, m.Messages)
}

func TestPrepared(t *testing.T) {
	body := "a,b\n1,2\n3,4\n5,6\n7,8\n9,10\n11,12\n"
	f := newFixture(t, Settings{}, map[string]string{PreparedFile: body})

	v := f.svc.Prepared(f.src)
	assert.Empty(t, v.Messages)
	assert.Equal(t, Shape{Rows: 6, Cols: 2}, v.Shape)
	assert.Len(t, v.Preview.Rows, PreviewRows)
}

func TestPCA_DerivesCumulativeVariance(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{VarianceFile: fixtureVariance})

	v := f.svc.PCA(f.src)
	assert.Empty(t, v.Messages)
	assert.Equal(t, []string{"PC1", "PC2", "PC3"}, v.Components)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, v.Explained)
	require.Len(t, v.Cumulative, 3)
	assert.InDelta(t, 0.5, v.Cumulative[0], 1e-9)
	assert.InDelta(t, 0.8, v.Cumulative[1], 1e-9)
	assert.InDelta(t, 1.0, v.Cumulative[2], 1e-9)
	assert.Contains(t, string(v.ExplainedChart), "<svg")
	assert.Contains(t, string(v.CumulativeChart), "<svg")
	assert.Nil(t, v.Loadings)
}

func TestPCA_CumulativeSkipsMissingVariance(t *testing.T) {
	body := "Componente,Varianza_explicada\nPC1,0.5\nPC2,\nPC3,0.3\nPC4,0.2\n"
	f := newFixture(t, Settings{}, map[string]string{VarianceFile: body})

	v := f.svc.PCA(f.src)
	require.Len(t, v.Cumulative, 4)
	assert.InDelta(t, 0.5, v.Cumulative[0], 1e-9)
	assert.True(t, math.IsNaN(v.Cumulative[1]))
	assert.InDelta(t, 0.8, v.Cumulative[2], 1e-9)
	assert.InDelta(t, 1.0, v.Cumulative[3], 1e-9)
	assert.Contains(t, string(v.CumulativeChart), "<svg")
}

func TestPCA_UsesStoredCumulativeVariance(t *testing.T) {
	body := "Componente,Varianza_explicada,Varianza_acumulada\nPC1,0.6,0.61\nPC2,0.4,0.99\n"
	f := newFixture(t, Settings{}, map[string]string{
		VarianceFile:   body,
		ComponentsFile: "variable,PC1,PC2\nx,0.1,0.2\n",
	})

	v := f.svc.PCA(f.src)
	assert.Equal(t, []float64{0.61, 0.99}, v.Cumulative)
	require.NotNil(t, v.Loadings)
	assert.Equal(t, []string{"variable", "PC1", "PC2"}, v.Loadings.Headers)
}

func TestPCA_MissingColumns(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{VarianceFile: "x,y\n1,2\n"})
	assert.Equal(t, []Message{warning(MsgNoPCA)}, f.svc.PCA(f.src).Messages)
}

func TestNetwork(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{NodesFile: fixtureNodes, EdgesFile: fixtureEdges})

	v := f.svc.Network(f.src)
	assert.Empty(t, v.Messages)
	assert.Equal(t, 3, v.Nodes)
	assert.Equal(t, 2, v.Edges)
	assert.Len(t, v.EdgePreview.Rows, 2)
}

func TestNetwork_NeedsBothFiles(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{NodesFile: fixtureNodes})
	assert.Equal(t, []Message{warning(MsgNoNetwork)}, f.svc.Network(f.src).Messages)
}

// centralityFixture has v00..v11 with grado equal to the index; v05 has no
// betweenness.
func centralityFixture() string {
	var b strings.Builder
	b.WriteString("variable,grado,betweenness,closeness\n")
	for i := 0; i < 12; i++ {
		between := fmt.Sprintf("%d", 100-i)
		if i == 5 {
			between = ""
		}
		fmt.Fprintf(&b, "v%02d,%d,%s,1\n", i, i, between)
	}
	return b.String()
}

func TestCentrality_TopTenDescending(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{CentralityFile: centralityFixture()})

	v := f.svc.Centrality(f.src, Degree)
	assert.Empty(t, v.Messages)
	assert.Equal(t, "Top 10 Variables por grado", v.Title)
	require.Len(t, v.Top, TopN)
	assert.Equal(t, Ranked{Variable: "v11", Value: 11}, v.Top[0])
	assert.Equal(t, Ranked{Variable: "v02", Value: 2}, v.Top[9])
	for i := 1; i < len(v.Top); i++ {
		assert.GreaterOrEqual(t, v.Top[i-1].Value, v.Top[i].Value)
	}
	assert.Contains(t, string(v.Chart), "<svg")
}

func TestTopCentrality_DropsMissingValues(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{CentralityFile: centralityFixture()})

	top, err := f.svc.TopCentrality(f.src, Betweenness, 20)
	require.NoError(t, err)
	assert.Len(t, top, 11)
	for _, r := range top {
		assert.NotEqual(t, "v05", r.Variable)
		assert.False(t, math.IsNaN(r.Value))
	}

	top, err = f.svc.TopCentrality(f.src, Closeness, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)
}

func TestTopCentrality_MissingMetricColumn(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{CentralityFile: "variable,grado\na,1\n"})

	_, err := f.svc.TopCentrality(f.src, Closeness, 10)
	assert.Error(t, err)
	assert.Equal(t, []Message{warning(MsgNoCentrality)}, f.svc.Centrality(f.src, Closeness).Messages)
}

func TestParseMetric(t *testing.T) {
	m, ok := ParseMetric("closeness")
	assert.True(t, ok)
	assert.Equal(t, Closeness, m)

	m, ok = ParseMetric("pagerank")
	assert.False(t, ok)
	assert.Equal(t, Degree, m)
}

func TestBrowse_MissingDataRoot(t *testing.T) {
	f := newFixture(t, Settings{}, nil)

	v := f.svc.Browse(f.src, BrowseRequest{})
	assert.Equal(t, []Message{failure(MsgNoDataRoot)}, v.Messages)
}

func TestBrowse_NoYearsAndNoBases(t *testing.T) {
	f := newFixture(t, Settings{}, nil)
	require.NoError(t, os.MkdirAll(f.data, 0o755))
	assert.Equal(t, []Message{warning(MsgNoYears)}, f.svc.Browse(f.src, BrowseRequest{}).Messages)

	require.NoError(t, os.MkdirAll(filepath.Join(f.data, "2022"), 0o755))
	v := f.svc.Browse(f.src, BrowseRequest{})
	assert.Equal(t, []string{"2022"}, v.Years)
	assert.Equal(t, []Message{warning(MsgNoBases)}, v.Messages)
}

func TestBrowse_DefaultsAndSelection(t *testing.T) {
	f := newFixture(t, Settings{}, nil)
	f.writeBase(t, "2024", "poblacion.csv", "a,b,c,d,e,f,g\n1,2,3,4,5,6,7\n")
	f.writeBase(t, "2024", "hogares.csv", "folioviv,ing_cor\n1,100\n")
	f.writeBase(t, "2024", "notas.txt", "x")
	f.writeBase(t, "2022", "hogares.csv", "folioviv\n1\n")

	v := f.svc.Browse(f.src, BrowseRequest{})
	assert.Empty(t, v.Messages)
	assert.Equal(t, []string{"2022", "2024"}, v.Years)
	assert.Equal(t, "2022", v.Year)

	v = f.svc.Browse(f.src, BrowseRequest{Year: "2024", Base: "poblacion.csv"})
	assert.Equal(t, []string{"hogares.csv", "poblacion.csv"}, v.Bases)
	assert.Equal(t, "poblacion.csv", v.Base)
	assert.Equal(t, Shape{Rows: 1, Cols: 7}, v.Shape)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, v.Selected)
	assert.Equal(t, "poblacion_2024_filtrado.csv", v.DownloadName)

	v = f.svc.Browse(f.src, BrowseRequest{Year: "2024", Base: "poblacion.csv", Columns: []string{"g", "zz", "a", "g"}, Submitted: true})
	assert.Equal(t, []string{"g", "a"}, v.Selected)
	assert.Equal(t, []string{"g", "a"}, v.Preview.Headers)

	v = f.svc.Browse(f.src, BrowseRequest{Year: "2024", Base: "poblacion.csv", Submitted: true})
	assert.Nil(t, v.Preview)
	assert.Equal(t, []Message{info(MsgNoColumns)}, v.Messages)
}

func TestFiltered(t *testing.T) {
	f := newFixture(t, Settings{}, nil)
	f.writeBase(t, "2024", "hogares.csv", "folioviv,foliohog,ing_cor\n1,1,100\n2,1,200\n")

	tbl, name, err := f.svc.Filtered(f.src, BrowseRequest{Year: "2024", Base: "hogares.csv", Columns: []string{"ing_cor"}, Submitted: true})
	require.NoError(t, err)
	assert.Equal(t, "hogares_2024_filtrado.csv", name)
	assert.Equal(t, [][]string{{"ing_cor"}, {"100"}, {"200"}}, tbl.Records())

	_, _, err = f.svc.Filtered(f.src, BrowseRequest{Year: "2024", Base: "hogares.csv", Submitted: true})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestSummarize(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{"estructura_familiar_2024.csv": fixtureSummary})

	s, err := f.svc.Summarize(f.src, "estructura_familiar_2024.csv")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 8, s.Cols)
	assert.NotContains(t, s.Numeric, "estructura_familiar")
	assert.Contains(t, s.Numeric, "edad_jefe")

	_, err = f.svc.Summarize(f.src, "../secret.csv")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	_, err = f.svc.Summarize(f.src, CentralityFile)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestKnownOutputs(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{NodesFile: fixtureNodes})

	outs := f.svc.KnownOutputs()
	require.Len(t, outs, 8)
	assert.Equal(t, "estructura_familiar_2024.csv", outs[0].Name)
	assert.Equal(t, "dataset_maestro_enigh_2024.csv", outs[1].Name)
	for _, o := range outs {
		assert.Equal(t, o.Name == NodesFile, o.Exists, o.Name)
	}
}

func TestMaster_DefaultScatter(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{"estructura_familiar_2024.csv": fixtureSummary})

	v := f.svc.Master(f.src, MasterRequest{})
	assert.True(t, v.Available)
	assert.Empty(t, v.Messages)
	assert.Equal(t, DatasetSummary, v.Dataset.Key)
	assert.Equal(t, "Estructura Familiar 2024", v.Dataset.Label)
	assert.Equal(t, ChartScatter, v.Kind)
	assert.Equal(t, "folioviv", v.X)
	assert.Equal(t, "foliohog", v.Y)
	assert.Contains(t, string(v.Chart), "<svg")
	assert.Len(t, v.Stats, 2)

	require.NotNil(t, v.Distribution)
	assert.Equal(t, 4, v.Distribution.Total)
	assert.Equal(t, 1, v.Distribution.Get(family.Structure("MP")))
}

func TestMaster_ChartKinds(t *testing.T) {
	f := newFixture(t, Settings{MaxCategories: 2}, map[string]string{"estructura_familiar_2024.csv": fixtureSummary})

	v := f.svc.Master(f.src, MasterRequest{Kind: string(ChartHistogram), Columns: []string{"edad_jefe"}})
	assert.Empty(t, v.Messages)
	assert.Equal(t, "edad_jefe", v.X)
	assert.Contains(t, string(v.Chart), "<svg")

	v = f.svc.Master(f.src, MasterRequest{Kind: string(ChartHistogram), Columns: []string{"edad_jefe", "hijos"}})
	assert.Empty(t, v.Chart)
	assert.Equal(t, []string{"La gráfica Histograma requiere 1 variable(s); se recibieron 2."}, texts(v.Messages))

	v = f.svc.Master(f.src, MasterRequest{Kind: string(ChartBar), Columns: []string{"estructura_familiar", "hijos"}})
	assert.Empty(t, v.Chart)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, LevelWarning, v.Messages[0].Level)

	// edad_jefe has three distinct values, capped to two categories
	v = f.svc.Master(f.src, MasterRequest{Kind: string(ChartBar), Columns: []string{"edad_jefe", "hijos"}})
	assert.Contains(t, string(v.Chart), "<svg")
	assert.Equal(t, []string{"Se muestran las primeras 2 de 3 categorías."}, texts(v.Messages))

	v = f.svc.Master(f.src, MasterRequest{Kind: string(ChartBox), Columns: []string{"sexo_jefe", "edad_jefe"}})
	assert.Contains(t, string(v.Chart), "<svg")
	assert.Empty(t, v.Messages)
}

func TestMaster_StaleSelectionsFallBackToDefaults(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{
		"estructura_familiar_2024.csv":   fixtureSummary,
		"dataset_maestro_enigh_2024.csv": "folioviv,foliohog,pareja,ing_cor,tipo_viv\n1,1,1,1000,1\n2,1,0,800,2\n",
	})

	// switching dataset keeps the other dataset's columns in the form
	v := f.svc.Master(f.src, MasterRequest{Dataset: DatasetSummary, Kind: string(ChartScatter), Columns: []string{"ing_cor", "tipo_viv"}})
	assert.Empty(t, v.Messages)
	assert.Equal(t, "folioviv", v.X)
	assert.Equal(t, "foliohog", v.Y)
	assert.Contains(t, string(v.Chart), "<svg")

	// switching from the histogram leaves Y unset
	v = f.svc.Master(f.src, MasterRequest{Dataset: DatasetMaster, Kind: string(ChartBar), Columns: []string{"pareja", ""}})
	assert.Empty(t, v.Messages)
	assert.Equal(t, "pareja", v.X)
	assert.Equal(t, "folioviv", v.Y)
	assert.Contains(t, string(v.Chart), "<svg")

	v = f.svc.Master(f.src, MasterRequest{Dataset: DatasetMaster, Kind: string(ChartScatter), Columns: []string{"", "folioviv"}})
	assert.Empty(t, v.Messages)
	assert.Equal(t, "foliohog", v.X)
	assert.Equal(t, "folioviv", v.Y)
}

func TestMaster_NotEnoughNumeric(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{
		"dataset_maestro_enigh_2024.csv": "folioviv,estructura_familiar\n1,MP\n2,FA\n",
	})

	v := f.svc.Master(f.src, MasterRequest{Dataset: DatasetMaster})
	assert.Equal(t, "Dataset Maestro ENIGH 2024", v.Dataset.Label)
	assert.True(t, v.Available)
	assert.Equal(t, []Message{warning(MsgNotEnoughNumeric)}, v.Messages)
	require.NotNil(t, v.Distribution)
	assert.Equal(t, 2, v.Distribution.Total)
}

func TestMasterTable(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{"estructura_familiar_2024.csv": fixtureSummary})

	tbl, opt, err := f.svc.MasterTable(f.src, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "estructura_familiar_2024.csv", opt.File)
	assert.Len(t, tbl.Rows, 4)

	_, _, err = f.svc.MasterTable(f.src, DatasetMaster)
	assert.True(t, errors.HasCode(err, errors.CodeInputMissing))
}

func TestParseChartKind(t *testing.T) {
	k, ok := ParseChartKind("Boxplot")
	assert.True(t, ok)
	assert.Equal(t, ChartBox, k)
	assert.Equal(t, 2, k.Arity())
	assert.Equal(t, 1, ChartHistogram.Arity())

	k, ok = ParseChartKind("Pastel")
	assert.False(t, ok)
	assert.Equal(t, ChartScatter, k)
}

func TestSamplePairs(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, math.NaN()}
	y := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	xs, ys, total := samplePairs(x, y, 3)
	assert.Equal(t, 10, total)
	assert.Equal(t, []float64{0, 4, 8}, xs)
	assert.Equal(t, []float64{0, 4, 8}, ys)

	xs, _, total = samplePairs(x, y, 0)
	assert.Len(t, xs, 10)
	assert.Equal(t, 10, total)
}

func TestGroupBy(t *testing.T) {
	groups := groupBy(
		[]float64{2, 1, 2, math.NaN(), 1},
		[]float64{10, 4, 20, 99, math.NaN()},
	)
	require.Len(t, groups, 2)
	assert.Equal(t, "1", groups[0].label())
	assert.Equal(t, []float64{4}, groups[0].values[:1])
	assert.True(t, math.IsNaN(groups[0].values[1]))
	assert.Equal(t, "2", groups[1].label())
	assert.Equal(t, []float64{10, 20}, groups[1].values)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, Settings{}, map[string]string{"estructura_familiar_2024.csv": fixtureSummary})
	tbl, err := f.src.Get(filepath.Join(f.outs, "estructura_familiar_2024.csv"))
	require.NoError(t, err)

	got := Describe(tbl, "edad_jefe", "missing", "hijos")
	require.Len(t, got, 2)

	edad := got[0]
	assert.Equal(t, "edad_jefe", edad.Column)
	assert.Equal(t, 3, edad.Count)
	assert.InDelta(t, 55.0, edad.Mean, 1e-9)
	assert.Equal(t, 45.0, edad.Min)
	assert.Equal(t, 50.0, edad.Median)
	assert.Equal(t, 70.0, edad.Max)
	assert.InDelta(t, 13.2287566, edad.Std, 1e-6)
	assert.LessOrEqual(t, edad.Q25, edad.Median)
	assert.GreaterOrEqual(t, edad.Q75, edad.Median)

	assert.Equal(t, 4, got[1].Count)
}
