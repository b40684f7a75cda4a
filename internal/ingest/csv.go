// Package ingest turns delimited exports into record sets and writes
// record sets back out.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/records"
)

var ErrNoFiles = errors.New("no files matched")

var delimiters = []rune{',', '\t', ';', '|'}

// sniff picks the delimiter that occurs most often in the header line.
func sniff(header string) rune {
	best, n := ',', 0
	for _, d := range delimiters {
		if c := strings.Count(header, string(d)); c > n {
			best, n = d, c
		}
	}
	return best
}

// ReadCSV reads a header line and rows. Columns named in schema are parsed
// as its kinds, other columns are kept as strings and empty cells are
// null. Columns with an empty header are dropped.
func ReadCSV(r io.Reader, schema records.Schema) (*records.Set, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	first = strings.TrimPrefix(first, "\ufeff")
	if strings.TrimSpace(first) == "" {
		return records.Empty(nil), nil
	}
	cr := csv.NewReader(io.MultiReader(strings.NewReader(first), br))
	cr.Comma = sniff(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var cols records.Schema
	pos := make([]int, 0, len(head))
	for i, name := range head {
		name = strings.TrimSpace(name)
		if name == "" || cols.Has(name) {
			continue
		}
		kind := records.KindString
		if j := schema.Index(name); j >= 0 {
			kind = schema[j].Kind
		}
		cols = append(cols, records.Field{Name: name, Kind: kind})
		pos = append(pos, i)
	}

	var rows []records.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		row := make(records.Row, len(cols))
		for k, f := range cols {
			raw := ""
			if pos[k] < len(rec) {
				raw = rec[pos[k]]
			}
			row[f.Name] = records.Parse(raw, f.Kind)
		}
		rows = append(rows, row)
	}
	return records.New(cols, rows...), nil
}

// WriteCSV writes the set with a header in schema order. Nulls are empty
// cells.
func WriteCSV(w io.Writer, set *records.Set) error {
	cw := csv.NewWriter(w)
	names := set.Schema().Names()
	if err := cw.Write(names); err != nil {
		return err
	}
	line := make([]string, len(names))
	for _, r := range set.Records() {
		for i, n := range names {
			v := r.Value(n)
			if v.IsNull() {
				line[i] = ""
				continue
			}
			line[i] = v.Text()
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPartition reads every file under dir whose base name matches pattern
// and concatenates them in name order. Record indexes are renumbered
// across the combined set.
func ReadPartition(ctx context.Context, dir string, pattern *regexp.Regexp, schema records.Schema, log *zap.Logger) (*records.Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	uris, err := iopkg.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var sets []*records.Set
	for _, uri := range uris {
		if !pattern.MatchString(iopkg.Base(uri)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := readFile(ctx, uri, schema)
		if err != nil {
			return nil, err
		}
		log.Debug("read file", zap.String("uri", uri), zap.Int("rows", set.Len()))
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoFiles, pattern, dir)
	}
	out := records.Concat(sets...).Reindex()
	log.Info("read partition", zap.String("dir", dir), zap.Int("files", len(sets)), zap.Int("rows", out.Len()))
	return out, nil
}

func readFile(ctx context.Context, uri string, schema records.Schema) (*records.Set, error) {
	rc, _, err := iopkg.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	set, err := ReadCSV(rc, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return set, nil
}

// WriteFile writes set to uri as CSV.
func WriteFile(ctx context.Context, uri string, set *records.Set) error {
	w, c, err := iopkg.CreateWriter(ctx, uri)
	if err != nil {
		return err
	}
	if err := WriteCSV(w, set); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}
