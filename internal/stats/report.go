package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TotalRow is the id of the row Report appends with column sums.
const TotalRow = "Total"

// Ratio describes a derived percentage column inserted before Before.
type Ratio struct {
	Name        string
	Numerator   string
	Denominator string
	Before      string
}

// Report merges one Stats per run into a table keyed by run id.
type Report struct {
	IDColumn string
	ids      []string
	rows     map[string]*Stats
}

func NewReport(idColumn string) *Report {
	return &Report{IDColumn: idColumn, rows: make(map[string]*Stats)}
}

// Add stores s under id; a repeated id merges into the existing row.
func (r *Report) Add(id string, s *Stats) {
	if cur, ok := r.rows[id]; ok {
		cur.Merge(s)
		return
	}
	row := New()
	row.Merge(s)
	r.ids = append(r.ids, id)
	r.rows[id] = row
}

func (r *Report) IDs() []string { return append([]string(nil), r.ids...) }

func (r *Report) Row(id string) (*Stats, bool) {
	s, ok := r.rows[id]
	return s, ok
}

// Columns returns every counter name in first-seen order.
func (r *Report) Columns() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range r.ids {
		for _, k := range r.rows[id].keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// IsPercent reports whether a column holds a percentage. Percentages do
// not sum, so Total leaves them out; use a Ratio to recompute them.
func IsPercent(col string) bool {
	return strings.HasPrefix(col, "pct_") || strings.Contains(col, "_pct_")
}

// Total sums integer counters across rows. Non-numeric cells such as
// NotApplicable contribute nothing; a column with no numeric cells is left
// out of the total, as are percentage columns.
func (r *Report) Total() *Stats {
	t := New()
	for _, col := range r.Columns() {
		if IsPercent(col) {
			continue
		}
		sum, found := 0, false
		for _, id := range r.ids {
			if n, ok := r.rows[id].Int(col); ok {
				sum += n
				found = true
			}
		}
		if found {
			t.Set(col, sum)
		}
	}
	return t
}

// WithTotal appends the Total row.
func (r *Report) WithTotal() *Report {
	out := NewReport(r.IDColumn)
	for _, id := range r.ids {
		out.Add(id, r.rows[id])
	}
	out.Add(TotalRow, r.Total())
	return out
}

// Table returns the rendered columns: the ordered columns when given,
// otherwise all, each ratio inserted before its anchor (or at the end).
func (r *Report) Table(ordered []string, ratios []Ratio) ([]string, [][]string) {
	cols := ordered
	if len(cols) == 0 {
		cols = r.Columns()
	}
	for _, ra := range ratios {
		cols = insertBefore(cols, ra.Before, ra.Name)
	}
	byName := make(map[string]Ratio, len(ratios))
	for _, ra := range ratios {
		byName[ra.Name] = ra
	}

	header := append([]string{r.IDColumn}, cols...)
	rows := make([][]string, 0, len(r.ids))
	for _, id := range r.ids {
		s := r.rows[id]
		line := make([]string, 0, len(header))
		line = append(line, id)
		for _, c := range cols {
			if ra, ok := byName[c]; ok {
				num, ok1 := s.Int(ra.Numerator)
				den, ok2 := s.Int(ra.Denominator)
				if !ok1 || !ok2 {
					line = append(line, NotApplicable)
					continue
				}
				line = append(line, strconv.Itoa(Pct(num, den)))
				continue
			}
			v, ok := s.Get(c)
			if !ok {
				line = append(line, "")
				continue
			}
			line = append(line, format(v))
		}
		rows = append(rows, line)
	}
	return header, rows
}

// WriteCSV renders the table.
func (r *Report) WriteCSV(w io.Writer, ordered []string, ratios []Ratio) error {
	header, rows := r.Table(ordered, ratios)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func insertBefore(cols []string, anchor, name string) []string {
	out := make([]string, 0, len(cols)+1)
	done := false
	for _, c := range cols {
		if c == anchor && !done {
			out = append(out, name)
			done = true
		}
		out = append(out, c)
	}
	if !done {
		out = append(out, name)
	}
	return out
}

func format(v any) string {
	switch t := v.(type) {
	case []string:
		return "[" + strings.Join(t, ", ") + "]"
	case []int:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = strconv.Itoa(n)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
