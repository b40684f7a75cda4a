package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// Connect opens a pool and pings it. Audit workers write in short bursts
// at the end of each partition, so the pool stays small.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	conf, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, err
	}
	conf.MaxConns = 4
	conf.MinConns = 0
	conf.MaxConnLifetime = 55 * time.Minute
	conf.MaxConnIdleTime = 5 * time.Minute
	conf.HealthCheckPeriod = 30 * time.Second

	p, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &Pool{Pool: p}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Schema creates the audit tables when missing.
const Schema = `
create table if not exists audit_run (
    id         uuid primary key,
    location   text not null,
    run_date   date not null,
    stats      jsonb not null,
    created_at timestamptz not null default now()
);
create table if not exists audit_reject (
    run_id       uuid not null references audit_run(id) on delete cascade,
    pos          int not null,
    record_index int not null,
    identifier   text,
    error        text not null,
    record       jsonb not null,
    primary key (run_id, pos)
);
create index if not exists audit_reject_error on audit_reject (run_id, error);
`

// EnsureSchema applies Schema.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	_, err := p.Exec(ctx, Schema)
	return err
}
