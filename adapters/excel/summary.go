package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"enigh/domain/family"
	"enigh/internal/dataset"
	"enigh/internal/errors"
)

// Sheet names of the family-structure workbook.
const (
	DistributionSheet = "distribucion"
	SummarySheet      = "estructura"
)

// SummaryWorkbook writes the family-structure summary and its label distribution
// to an XLSX file at Path.
type SummaryWorkbook struct {
	Path string
}

// NewSummaryWorkbook creates an exporter writing to path.
func NewSummaryWorkbook(path string) *SummaryWorkbook {
	return &SummaryWorkbook{Path: path}
}

func (s *SummaryWorkbook) Name() string { return "xlsx" }

// Export writes the workbook, replacing any previous file.
func (s *SummaryWorkbook) Export(ctx context.Context, year int, summary *dataset.Table, dist family.Distribution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", s.Path)
	}

	file, err := os.Create(s.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", s.Path)
	}

	err = WriteWorkbook(file,
		Sheet{Name: DistributionSheet, Table: DistributionTable(year, dist), ColWidth: 24},
		Sheet{Name: SummarySheet, Table: summary},
	)
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write %s", s.Path)
	}
	return errors.Wrapf(file.Close(), "failed to close %s", s.Path)
}

// DistributionTable renders a label distribution as rows of
// (anio, estructura, descripcion, hogares, porcentaje).
func DistributionTable(year int, dist family.Distribution) *dataset.Table {
	headers := []string{"anio", "estructura", "descripcion", "hogares", "porcentaje"}
	rows := make([][]string, 0, len(dist.Counts))
	for _, c := range dist.Counts {
		rows = append(rows, []string{
			strconv.Itoa(year),
			string(c.Structure),
			c.Description,
			strconv.Itoa(c.Households),
			strconv.FormatFloat(math.Round(c.Share*10000)/100, 'f', -1, 64),
		})
	}
	return dataset.NewTable(DistributionSheet, headers, rows)
}
