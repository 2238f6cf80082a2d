package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"enigh/internal/dataset"
	"enigh/internal/errors"
)

// DefaultSelectedColumns is how many leading columns the browser selects when
// the user has not chosen any.
const DefaultSelectedColumns = 5

// BrowseRequest is the state of the raw-data browser form.
type BrowseRequest struct {
	Year    string
	Base    string
	Columns []string
	// Submitted is true once the user has sent a column selection, which
	// may be empty.
	Submitted bool
}

// BrowseView is the raw-data browser.
type BrowseView struct {
	Years        []string
	Year         string
	Bases        []string
	Base         string
	Shape        Shape
	Columns      []string
	Selected     []string
	Preview      *dataset.Table
	DownloadName string
	Messages     []Message
}

// ListYears returns the sorted subdirectories of the ENIGH folder.
func (s *Service) ListYears() ([]string, error) {
	entries, err := os.ReadDir(s.settings.DataRoot)
	if err != nil {
		return nil, err
	}
	var years []string
	for _, e := range entries {
		if e.IsDir() {
			years = append(years, e.Name())
		}
	}
	sort.Strings(years)
	return years, nil
}

// ListBases returns the sorted CSV files of one year folder.
func (s *Service) ListBases(year string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.settings.DataRoot, year))
	if err != nil {
		return nil, err
	}
	var bases []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			bases = append(bases, e.Name())
		}
	}
	sort.Strings(bases)
	return bases, nil
}

// Browse builds the raw-data browser view.
func (s *Service) Browse(src Source, req BrowseRequest) *BrowseView {
	v := &BrowseView{}

	years, err := s.ListYears()
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.settings.DataRoot).Msg("failed to list years")
		}
		v.Messages = append(v.Messages, failure(MsgNoDataRoot))
		return v
	}
	if len(years) == 0 {
		v.Messages = append(v.Messages, warning(MsgNoYears))
		return v
	}
	v.Years = years
	v.Year = pick(years, req.Year)

	bases, err := s.ListBases(v.Year)
	if err != nil || len(bases) == 0 {
		v.Messages = append(v.Messages, warning(MsgNoBases))
		return v
	}
	v.Bases = bases
	v.Base = pick(bases, req.Base)

	table, err := src.Get(filepath.Join(s.settings.DataRoot, v.Year, v.Base))
	if err != nil {
		s.logger.Warn().Err(err).Str("base", v.Base).Msg("failed to load base")
		v.Messages = append(v.Messages, failure(fmt.Sprintf("No se pudo leer %s: %v", v.Base, err)))
		return v
	}
	v.Shape = shapeOf(table)
	v.Columns = table.Headers
	v.Selected = s.selectColumns(table, req)

	if len(v.Selected) == 0 {
		v.Messages = append(v.Messages, info(MsgNoColumns))
		return v
	}
	filtered, err := table.Select(v.Selected...)
	if err != nil {
		v.Messages = append(v.Messages, failure(err.Error()))
		return v
	}
	v.Preview = filtered.Head(PreviewRows)
	v.DownloadName = FilteredDownloadName(v.Base, v.Year)
	return v
}

// Filtered returns the full table of the browser selection for download, with
// its file name.
func (s *Service) Filtered(src Source, req BrowseRequest) (*dataset.Table, string, error) {
	v := s.Browse(src, req)
	if v.Preview == nil {
		if len(v.Messages) > 0 {
			return nil, "", errors.InvalidInput(v.Messages[0].Text)
		}
		return nil, "", errors.InvalidInput(MsgNoColumns)
	}
	table, err := src.Get(filepath.Join(s.settings.DataRoot, v.Year, v.Base))
	if err != nil {
		return nil, "", err
	}
	filtered, err := table.Select(v.Selected...)
	if err != nil {
		return nil, "", err
	}
	return filtered, v.DownloadName, nil
}

// FilteredDownloadName is <base>_<year>_filtrado.csv.
func FilteredDownloadName(base, year string) string {
	return fmt.Sprintf("%s_%s_filtrado.csv", strings.TrimSuffix(base, ".csv"), year)
}

func (s *Service) selectColumns(table *dataset.Table, req BrowseRequest) []string {
	if !req.Submitted && len(req.Columns) == 0 {
		n := DefaultSelectedColumns
		if n > len(table.Headers) {
			n = len(table.Headers)
		}
		return append([]string(nil), table.Headers[:n]...)
	}
	var out []string
	seen := make(map[string]bool)
	for _, c := range req.Columns {
		if table.Has(c) && !seen[c] {
			out = append(out, c)
			seen[c] = true
		}
	}
	return out
}

// pick returns want when it is one of options and the first option otherwise.
func pick(options []string, want string) string {
	for _, o := range options {
		if o == want {
			return o
		}
	}
	return options[0]
}
