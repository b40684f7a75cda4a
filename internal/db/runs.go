package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourorg/case-audit/internal/records"
	"github.com/yourorg/case-audit/internal/stats"
)

// Run is one audited partition.
type Run struct {
	ID        uuid.UUID
	Location  string
	RunDate   time.Time
	Stats     *stats.Stats
	CreatedAt time.Time
}

// Reject is one stored bad-list row.
type Reject struct {
	Pos         int
	RecordIndex int
	Identifier  *string
	Error       string
	Record      map[string]*string
}

// RunRepository persists audit statistics and bad lists.
type RunRepository interface {
	// SaveStats inserts or replaces the run row.
	SaveStats(ctx context.Context, run Run) error
	// SaveLedger bulk inserts the ledger with COPY; idField names the
	// identifier column copied into its own column.
	SaveLedger(ctx context.Context, runID uuid.UUID, ledger *records.Set, idField string) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (Run, error)
	// Rejects lists a run's bad-list rows, optionally for one tag.
	Rejects(ctx context.Context, runID uuid.UUID, tag string) ([]Reject, error)
}

func NewRunRepo(p *Pool) RunRepository { return &runRepo{p: p} }

type runRepo struct{ p *Pool }

func (r *runRepo) SaveStats(ctx context.Context, run Run) error {
	body, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	const q = `insert into audit_run (id, location, run_date, stats) values ($1::uuid, $2, $3, $4)
               on conflict (id) do update set location=excluded.location, run_date=excluded.run_date, stats=excluded.stats`
	_, err = r.p.Exec(ctx, q, run.ID.String(), run.Location, run.RunDate, body)
	return mapPgErr(err)
}

func (r *runRepo) SaveLedger(ctx context.Context, runID uuid.UUID, ledger *records.Set, idField string) (int64, error) {
	if ledger.Len() == 0 {
		return 0, nil
	}
	names := ledger.Schema().Names()
	rows := make([][]any, 0, ledger.Len())
	for pos, rec := range ledger.Records() {
		cells := make(map[string]*string, len(names))
		for _, n := range names {
			cells[n] = textPtr(rec.Value(n))
		}
		body, err := json.Marshal(cells)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{runID, pos, rec.Index(), textPtr(rec.Value(idField)), rec.Error(), body})
	}
	ct, err := r.p.CopyFrom(ctx,
		pgx.Identifier{"audit_reject"},
		[]string{"run_id", "pos", "record_index", "identifier", "error", "record"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, mapPgErr(err)
	}
	return ct, nil
}

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	const q = `select id::text, location, run_date, stats, created_at from audit_run where id=$1::uuid`
	var (
		run  Run
		sid  string
		body []byte
	)
	err := r.p.QueryRow(ctx, q, id.String()).Scan(&sid, &run.Location, &run.RunDate, &body, &run.CreatedAt)
	if err != nil {
		return Run{}, mapPgErr(err)
	}
	if run.ID, err = uuid.Parse(sid); err != nil {
		return Run{}, err
	}
	run.Stats = stats.New()
	if err := json.Unmarshal(body, run.Stats); err != nil {
		return Run{}, fmt.Errorf("decode stats: %w", err)
	}
	return run, nil
}

func (r *runRepo) Rejects(ctx context.Context, runID uuid.UUID, tag string) ([]Reject, error) {
	q := `select pos, record_index, identifier, error, record from audit_reject where run_id=$1::uuid`
	args := []any{runID.String()}
	if tag != "" {
		q += ` and error=$2`
		args = append(args, tag)
	}
	q += ` order by pos`
	rows, err := r.p.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	var out []Reject
	for rows.Next() {
		var (
			rj   Reject
			body []byte
		)
		if err := rows.Scan(&rj.Pos, &rj.RecordIndex, &rj.Identifier, &rj.Error, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &rj.Record); err != nil {
			return nil, err
		}
		out = append(out, rj)
	}
	return out, rows.Err()
}

func textPtr(v records.Value) *string {
	if v.IsNull() {
		return nil
	}
	s := v.Text()
	return &s
}
