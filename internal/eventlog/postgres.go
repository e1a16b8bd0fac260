package eventlog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent appends across ledgerd instances
// sharing one database.
const advisoryLockKey = int64(1_284_716_093)

const selectRecord = `SELECT seq, recorded_at, kind, subject, actor, payload, data_hash, prev_hash, hash FROM event_log`

// PostgresLog persists the event log to PostgreSQL. The event_log table and
// its genesis row are created by migrations/001_event_log.up.sql.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresLog backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. The tail read and the insert run in one
// transaction under an advisory lock.
func (l *PostgresLog) Append(ctx context.Context, kind, subject, actor string, payload any) (*Record, error) {
	b, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanRecord(tx.QueryRow(ctx, selectRecord+" ORDER BY seq DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("read log tail: %w", err)
	}

	r := link(prev, now(), kind, subject, actor, b)
	if _, err := tx.Exec(ctx,
		`INSERT INTO event_log (seq, recorded_at, kind, subject, actor, payload, data_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.Sequence, r.Time, r.Kind, r.Subject, r.Actor,
		string(r.Payload), r.DataHash, r.PrevHash, r.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit event tx: %w", err)
	}

	l.logger.Debug("event appended",
		zap.Int("seq", r.Sequence),
		zap.String("kind", r.Kind),
		zap.String("subject", r.Subject),
	)
	return r, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, seq int) (*Record, error) {
	r, err := scanRecord(l.pool.QueryRow(ctx, selectRecord+" WHERE seq = $1", seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sequence %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", seq, err)
	}
	return r, nil
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM event_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// All implements Log. Rows are streamed from a single query.
func (l *PostgresLog) All(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		rows, err := l.pool.Query(ctx, selectRecord+" WHERE seq > 0 ORDER BY seq ASC")
		if err != nil {
			yield(nil, fmt.Errorf("query events: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan event: %w", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Verify implements Log. It is O(n) in the length of the log.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, selectRecord+" ORDER BY seq ASC")
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var prev *Record
	for rows.Next() {
		curr, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if err := check(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if prev == nil {
		return fmt.Errorf("%w: genesis record missing", ErrCorrupt)
	}
	return nil
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM event_log ORDER BY seq DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get log root: %w", err)
	}
	return hash, nil
}

// Ping reports whether the database is reachable.
func (l *PostgresLog) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		r       Record
		payload []byte
	)
	if err := row.Scan(
		&r.Sequence, &r.Time, &r.Kind, &r.Subject, &r.Actor,
		&payload, &r.DataHash, &r.PrevHash, &r.Hash,
	); err != nil {
		return nil, err
	}
	r.Time = r.Time.UTC()
	if r.Sequence > 0 {
		r.Payload = payload
	}
	return &r, nil
}
