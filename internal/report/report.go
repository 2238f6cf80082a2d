// Package report computes the view models of the exploration dashboard.
//
// Every view degrades on its own: a missing or unreadable backing file turns
// into a Message on that view and never into an error for the caller.
package report

import (
	stderrors "errors"
	"os"
	"path/filepath"

	"enigh/internal/dataset"
	"enigh/internal/errors"
	"enigh/internal/integration"
	"enigh/internal/logging"

	"github.com/rs/zerolog"
)

// Files produced by the analysis notebooks and read by the dashboard.
const (
	PreparedFile   = "01_preparacion_pca.csv"
	ComponentsFile = "02_componentes_pca.csv"
	VarianceFile   = "02_varianza_explicada_pca.csv"
	NodesFile      = "03_red_nodos.csv"
	EdgesFile      = "03_red_aristas.csv"
	CentralityFile = "04_centralidad.csv"
)

// PreviewRows is the number of rows shown in table previews.
const PreviewRows = 5

// User-facing messages.
const (
	MsgNoDataRoot       = "La carpeta ENIGH no existe en el proyecto."
	MsgNoYears          = "No se encontraron años dentro de ENIGH."
	MsgNoBases          = "No se encontraron archivos CSV en este año."
	MsgNoColumns        = "Selecciona al menos una columna."
	MsgNoPrepared       = "No se encontraron archivos en outputs."
	MsgNoPCA            = "No se encontraron resultados de PCA."
	MsgNoNetwork        = "No se encontraron resultados de red."
	MsgNoCentrality     = "No se encontraron resultados de centralidad."
	MsgNoMasterFile     = "No se encontró el archivo en la carpeta outputs."
	MsgNotEnoughNumeric = "No se detectaron suficientes variables numéricas para graficar."
	MsgNoPlottable      = "No hay valores numéricos para graficar con esta selección."
)

// Level is the severity of a Message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is a user-visible notice attached to a view.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

func warning(text string) Message { return Message{Level: LevelWarning, Text: text} }
func failure(text string) Message { return Message{Level: LevelError, Text: text} }
func info(text string) Message    { return Message{Level: LevelInfo, Text: text} }

// Source returns loaded tables by path. A session's tablecache.Cache is one.
type Source interface {
	Get(path string) (*dataset.Table, error)
}

// Settings configures a Service.
type Settings struct {
	DataRoot      string
	OutputsRoot   string
	Year          int
	MaxCategories int
	MaxPoints     int
}

// Service builds the dashboard views.
type Service struct {
	settings Settings
	logger   zerolog.Logger
}

// NewService creates a report service.
func NewService(s Settings) *Service {
	if s.MaxCategories <= 0 {
		s.MaxCategories = 50
	}
	if s.MaxPoints <= 0 {
		s.MaxPoints = 5000
	}
	return &Service{settings: s, logger: logging.Component("report")}
}

// Settings returns the service configuration.
func (s *Service) Settings() Settings {
	return s.settings
}

func (s *Service) outputPath(name string) string {
	return filepath.Join(s.settings.OutputsRoot, name)
}

// loadOutput reads one file of the outputs folder, logging anything other than
// a missing file.
func (s *Service) loadOutput(src Source, name string) (*dataset.Table, error) {
	t, err := src.Get(s.outputPath(name))
	if err != nil && !errors.HasCode(err, errors.CodeInputMissing) {
		s.logger.Warn().Err(err).Str("file", name).Msg("failed to load output")
	}
	return t, err
}

// Shape is a (rows, columns) pair.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func shapeOf(t *dataset.Table) Shape {
	r, c := t.Shape()
	return Shape{Rows: r, Cols: c}
}

// OutputFile describes one known file of the outputs folder.
type OutputFile struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size"`
}

// KnownOutputs lists the files the dashboard reads from the outputs folder in a
// fixed order, with their presence on disk.
func (s *Service) KnownOutputs() []OutputFile {
	names := []string{
		integration.SummaryFileName(s.settings.Year),
		integration.MasterFileName(s.settings.Year),
		PreparedFile, ComponentsFile, VarianceFile, NodesFile, EdgesFile, CentralityFile,
	}
	out := make([]OutputFile, 0, len(names))
	for _, n := range names {
		f := OutputFile{Name: n}
		if fi, err := os.Stat(s.outputPath(n)); err == nil && !fi.IsDir() {
			f.Exists = true
			f.Size = fi.Size()
		}
		out = append(out, f)
	}
	return out
}

// IsKnownOutput reports whether name is one of KnownOutputs.
func (s *Service) IsKnownOutput(name string) bool {
	for _, f := range s.KnownOutputs() {
		if f.Name == name {
			return true
		}
	}
	return false
}

// TableSummary is the shape and column inventory of a table.
type TableSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Cols    int      `json:"cols"`
	Columns []string `json:"columns"`
	Numeric []string `json:"numeric"`
}

// Summarize loads a known output and describes its columns.
func (s *Service) Summarize(src Source, name string) (*TableSummary, error) {
	if !s.IsKnownOutput(name) {
		return nil, errors.NotFound(name)
	}
	t, err := s.loadOutput(src, name)
	if err != nil {
		if errors.HasCode(err, errors.CodeInputMissing) {
			return nil, errors.WithCode(errors.CodeNotFound, err)
		}
		return nil, err
	}
	rows, cols := t.Shape()
	return &TableSummary{
		Name:    name,
		Rows:    rows,
		Cols:    cols,
		Columns: t.Headers,
		Numeric: t.NumericColumns(),
	}, nil
}

func isNotExist(err error) bool {
	return stderrors.Is(err, os.ErrNotExist)
}
