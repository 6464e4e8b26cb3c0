package util

import "strings"

// Table is a worksheet read as one header row followed by records.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable treats the first non-blank row as the header row.
func NewTable(rows [][]string) Table {
	for i, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		t := Table{Headers: row}
		for _, r := range rows[i+1:] {
			if strings.TrimSpace(strings.Join(r, "")) == "" {
				continue
			}
			t.Rows = append(t.Rows, r)
		}
		return t
	}
	return Table{}
}

// Column finds the header matching one of aliases. All headers are tried for an
// exact normalized match before any partial (containment either way) match.
func (t Table) Column(aliases ...string) int {
	return MatchHeader(t.Headers, aliases...)
}

func MatchHeader(headers []string, aliases ...string) int {
	targets := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if k := NormalizeKey(a); k != "" {
			targets = append(targets, k)
		}
	}
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = NormalizeKey(h)
	}
	for i, k := range keys {
		for _, t := range targets {
			if k != "" && k == t {
				return i
			}
		}
	}
	for i, k := range keys {
		if k == "" {
			continue
		}
		for _, t := range targets {
			if strings.Contains(k, t) || strings.Contains(t, k) {
				return i
			}
		}
	}
	return -1
}

// Cell returns the trimmed value at idx, or "" when idx is out of range.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// FindSheet picks a sheet by exact name, then by alias, then by partial name.
// It returns "" when nothing fits.
func FindSheet(names []string, target string, aliases ...string) string {
	lt := strings.ToLower(target)
	for _, n := range names {
		if strings.ToLower(n) == lt {
			return n
		}
	}
	for _, n := range names {
		ln := strings.ToLower(strings.TrimSpace(n))
		for _, a := range aliases {
			if ln == strings.ToLower(a) {
				return n
			}
		}
	}
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), lt) {
			return n
		}
	}
	return ""
}

func JoinList(list []string) string {
	return strings.Join(list, ", ")
}
