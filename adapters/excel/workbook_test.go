package excel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"enigh/domain/family"
	"enigh/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWorkbook_RoundTrip(t *testing.T) {
	table := dataset.NewTable("datos", []string{"folioviv", "ing_cor", "nota"}, [][]string{
		{"0100013605", "1250.5", "a"},
		{"100013606", "", "b"},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, Sheet{Name: "datos", Table: table}))

	back, err := readSheet(bytes.NewReader(buf.Bytes()), "datos")
	require.NoError(t, err)
	assert.Equal(t, table.Headers, back.Headers)
	assert.Equal(t, table.Rows, back.Rows)
}

func TestWriteWorkbook_NoSheets(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteWorkbook(&buf))
}

func TestCellValue(t *testing.T) {
	assert.Nil(t, cellValue(""))
	assert.Equal(t, 12.5, cellValue("12.5"))
	assert.Equal(t, "0101", cellValue("0101"))
	assert.Equal(t, "2.0", cellValue("2.0"))
	assert.Equal(t, "MP", cellValue("MP"))
}

func TestSummaryWorkbook_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs", "estructura_familiar_2024.xlsx")
	summary := dataset.NewTable("estructura_familiar", []string{"folioviv", "foliohog", "estructura_familiar"}, [][]string{
		{"100000001", "1", "MP"},
		{"100000002", "1", "FA"},
	})
	dist := family.Tally([]family.Structure{family.MalePartner, family.FemaleSolo})

	exp := NewSummaryWorkbook(path)
	require.NoError(t, exp.Export(context.Background(), 2024, summary, dist))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	names, err := SheetNames(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{DistributionSheet, SummarySheet}, names)

	distSheet, err := readSheet(bytes.NewReader(data), DistributionSheet)
	require.NoError(t, err)
	require.Len(t, distSheet.Rows, 7)
	assert.Equal(t, []string{"2024", "FA", "Femenino unipersonal", "1", "50"}, distSheet.Rows[0])

	sheet, err := readSheet(bytes.NewReader(data), SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, summary.Rows, sheet.Rows)
}

func TestDistributionTable(t *testing.T) {
	dist := family.Tally([]family.Structure{family.MaleSolo, family.MaleSolo, family.MalePartner})
	table := DistributionTable(2022, dist)

	assert.Equal(t, []string{"anio", "estructura", "descripcion", "hogares", "porcentaje"}, table.Headers)
	assert.Equal(t, []string{"2022", "MA", "Masculino unipersonal", "2", "66.67"}, table.Rows[4])
}
