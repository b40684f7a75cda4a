package pipeline

// Deduper remembers identifier values across a run.
type Deduper interface {
	// Seen records key and reports whether it had been recorded before.
	Seen(key string) (bool, error)
	Close() error
}

// DeduperFactory opens a fresh Deduper for each run.
type DeduperFactory func() (Deduper, error)

type memory map[string]struct{}

// NewMemory returns an in-process Deduper.
func NewMemory() (Deduper, error) { return memory{}, nil }

func (m memory) Seen(key string) (bool, error) {
	if _, ok := m[key]; ok {
		return true, nil
	}
	m[key] = struct{}{}
	return false, nil
}

func (m memory) Close() error { return nil }
