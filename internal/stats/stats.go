// Package stats holds the per-run statistics dictionary and the report that
// merges one dictionary per run into a table.
package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// NotApplicable marks a counter whose input column was missing.
const NotApplicable = "not applicable"

// Stats is an insertion-ordered map from counter name to scalar. Values are
// int, float64, string, []string or []int.
type Stats struct {
	keys []string
	vals map[string]any
}

func New() *Stats { return &Stats{vals: make(map[string]any)} }

// Set stores v under key, keeping the key's first position.
func (s *Stats) Set(key string, v any) {
	if s.vals == nil {
		s.vals = make(map[string]any)
	}
	if _, ok := s.vals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = v
}

// NA marks every key as not applicable.
func (s *Stats) NA(keys ...string) {
	for _, k := range keys {
		s.Set(k, NotApplicable)
	}
}

func (s *Stats) Get(key string) (any, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Int returns the counter as an int; ok is false for missing or
// non-numeric values.
func (s *Stats) Int(key string) (int, bool) {
	switch v := s.vals[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (s *Stats) Keys() []string { return append([]string(nil), s.keys...) }

func (s *Stats) Len() int { return len(s.keys) }

// Merge copies every entry of o into s; o wins on conflicts.
func (s *Stats) Merge(o *Stats) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		s.Set(k, o.vals[k])
	}
}

// MergePrefix is Merge with every key of o prefixed, for dictionaries that
// reuse counter names.
func (s *Stats) MergePrefix(prefix string, o *Stats) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		s.Set(prefix+k, o.vals[k])
	}
}

// Pct returns floor(100*num/den), the integer percentage legacy reports
// used. It under-reports by up to one point. A zero denominator yields 0.
func Pct(num, den int) int {
	if den == 0 {
		return 0
	}
	return 100 * num / den
}

// TopN returns up to n most frequent values with their counts. Ties keep the
// order in which values were first seen.
func TopN(values []string, n int) ([]string, []int) {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if n >= 0 && len(order) > n {
		order = order[:n]
	}
	out := make([]int, len(order))
	for i, v := range order {
		out[i] = counts[v]
	}
	return order, out
}

type entry struct {
	Key   string          `json:"k"`
	Value json.RawMessage `json:"v"`
}

// MarshalJSON writes the entries as an ordered list so the dictionary keeps
// its column order across Temporal payloads and database rows.
func (s *Stats) MarshalJSON() ([]byte, error) {
	out := make([]entry, 0, len(s.keys))
	for _, k := range s.keys {
		b, err := json.Marshal(s.vals[k])
		if err != nil {
			return nil, fmt.Errorf("stats %q: %w", k, err)
		}
		out = append(out, entry{Key: k, Value: b})
	}
	return json.Marshal(out)
}

func (s *Stats) UnmarshalJSON(b []byte) error {
	var in []entry
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Stats{vals: make(map[string]any, len(in))}
	for _, e := range in {
		v, err := decodeScalar(e.Value)
		if err != nil {
			return fmt.Errorf("stats %q: %w", e.Key, err)
		}
		s.Set(e.Key, v)
	}
	return nil
}

// decodeScalar restores ints that JSON would otherwise widen to float64.
func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case json.Number:
		return number(t), nil
	case []any:
		if len(t) == 0 {
			return []string{}, nil
		}
		if _, ok := t[0].(json.Number); ok {
			out := make([]int, len(t))
			for i, e := range t {
				n, _ := e.(json.Number).Int64()
				out[i] = int(n)
			}
			return out, nil
		}
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = fmt.Sprint(e)
		}
		return out, nil
	}
	return v, nil
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, _ := n.Float64()
	return f
}
