package dataset

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"enigh/internal/errors"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV loads a CSV file. A missing file is an INPUT_MISSING error, anything
// unparseable is MALFORMED_INPUT.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.InputMissing(path, err)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	table, err := ParseCSV(filepath.Base(path), file)
	if err != nil {
		return nil, errors.MalformedInput(path, err)
	}
	return table, nil
}

// ParseCSV parses CSV text with a header row. Input that is not valid UTF-8 is
// decoded as ISO-8859-1, the encoding of older INEGI releases.
func ParseCSV(name string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s has no header row", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	headers := uniqueHeaders(header)

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(record) > len(headers) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: expected %d fields, saw %d", name, line, len(headers), len(record))
		}
		for len(record) < len(headers) {
			record = append(record, "")
		}
		rows = append(rows, record)
	}

	return NewTable(name, headers, rows), nil
}

// uniqueHeaders trims names and renames repeats to name.1, name.2, ...
func uniqueHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			out[i] = h + "." + strconv.Itoa(n+1)
			continue
		}
		seen[h] = 0
		out[i] = h
	}
	return out
}

// WriteCSV writes the header and rows of a table.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes a table to path, creating the parent directory.
func WriteCSVFile(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	if err := WriteCSV(file, t); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(file.Close(), "failed to close %s", path)
}
