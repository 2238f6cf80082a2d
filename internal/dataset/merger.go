package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// JoinSpec configures one left join.
type JoinSpec struct {
	Keys []string
	// Suffixes are appended to non-key columns present on both sides.
	Suffixes [2]string
}

// DefaultSuffixes follow the pandas merge convention.
var DefaultSuffixes = [2]string{"_x", "_y"}

// JoinStats summarises one merge for logging.
type JoinStats struct {
	LeftRows      int `json:"left_rows"`
	RightRows     int `json:"right_rows"`
	UnmatchedLeft int `json:"unmatched_left"`
	FanOutRows    int `json:"fan_out_rows"`
	OutputRows    int `json:"output_rows"`
}

// Merger joins tables on key columns.
type Merger struct{}

// NewMerger creates a new dataset merger
func NewMerger() *Merger {
	return &Merger{}
}

// LeftJoin merges right into left. Output rows follow left order; a left row with
// several matches is repeated once per match, in right order, and an unmatched
// left row gets empty cells for the right columns.
func (m *Merger) LeftJoin(left, right *Table, spec JoinSpec) (*Table, JoinStats, error) {
	stats := JoinStats{LeftRows: len(left.Rows), RightRows: len(right.Rows)}

	if len(spec.Keys) == 0 {
		return nil, stats, fmt.Errorf("join %s with %s: no key columns", left.Name, right.Name)
	}
	if spec.Suffixes == ([2]string{}) {
		spec.Suffixes = DefaultSuffixes
	}

	leftKeys, err := keyIndexes(left, spec.Keys)
	if err != nil {
		return nil, stats, err
	}
	rightKeys, err := keyIndexes(right, spec.Keys)
	if err != nil {
		return nil, stats, err
	}

	headers, rightCols := m.joinedHeaders(left, right, spec)

	lookup := make(map[string][]int, len(right.Rows))
	for i, row := range right.Rows {
		k := compositeKey(row, rightKeys)
		lookup[k] = append(lookup[k], i)
	}

	rows := make([][]string, 0, len(left.Rows))
	for _, lrow := range left.Rows {
		matches := lookup[compositeKey(lrow, leftKeys)]
		if len(matches) == 0 {
			stats.UnmatchedLeft++
			rows = append(rows, concatRow(lrow, nil, rightCols))
			continue
		}
		if len(matches) > 1 {
			stats.FanOutRows += len(matches) - 1
		}
		for _, ri := range matches {
			rows = append(rows, concatRow(lrow, right.Rows[ri], rightCols))
		}
	}
	stats.OutputRows = len(rows)

	name := fmt.Sprintf("%s+%s", left.Name, right.Name)
	return NewTable(name, headers, rows), stats, nil
}

// joinedHeaders returns the output header and the right-side columns that are
// appended (every right column except the keys).
func (m *Merger) joinedHeaders(left, right *Table, spec JoinSpec) ([]string, []int) {
	isKey := make(map[string]bool, len(spec.Keys))
	for _, k := range spec.Keys {
		isKey[k] = true
	}

	var rightCols []int
	rightNames := make(map[string]bool)
	for i, h := range right.Headers {
		if isKey[h] {
			continue
		}
		rightCols = append(rightCols, i)
		rightNames[h] = true
	}

	headers := make([]string, 0, len(left.Headers)+len(rightCols))
	for _, h := range left.Headers {
		if !isKey[h] && rightNames[h] {
			h += spec.Suffixes[0]
		}
		headers = append(headers, h)
	}
	for _, i := range rightCols {
		h := right.Headers[i]
		if left.Index(h) >= 0 {
			h += spec.Suffixes[1]
		}
		headers = append(headers, h)
	}
	return headers, rightCols
}

func concatRow(left, right []string, rightCols []int) []string {
	out := make([]string, 0, len(left)+len(rightCols))
	out = append(out, left...)
	for _, i := range rightCols {
		if right == nil {
			out = append(out, "")
		} else {
			out = append(out, right[i])
		}
	}
	return out
}

func keyIndexes(t *Table, keys []string) ([]int, error) {
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = t.Index(k)
		if idx[i] < 0 {
			return nil, fmt.Errorf("key column %q not found in %s", k, t.Name)
		}
	}
	return idx, nil
}

const keySeparator = "\x1f"

func compositeKey(row []string, idx []int) string {
	if len(idx) == 1 {
		return CanonicalKey(row[idx[0]])
	}
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = CanonicalKey(row[j])
	}
	return strings.Join(parts, keySeparator)
}

// CanonicalKey normalises a key cell so that values equal as numbers compare
// equal as strings ("0100013605", "100013605" and "100013605.0" agree).
func CanonicalKey(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ""
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return cell
}

// CountDuplicates counts rows whose key already appeared on an earlier row.
func CountDuplicates(t *Table, keys ...string) (int, error) {
	idx, err := keyIndexes(t, keys)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(t.Rows))
	dups := 0
	for _, row := range t.Rows {
		k := compositeKey(row, idx)
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups, nil
}

// CompareKeys orders two key tuples part by part, numerically when both parts
// are numbers and lexically otherwise.
func CompareKeys(a, b []string) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if c := compareCell(a[i], b[i]); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

func compareCell(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	switch {
	case errA == nil && errB == nil:
		if fa < fb {
			return -1
		}
		if fa > fb {
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
