package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of pgxpool.Pool the Postgres lease needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres implements the lease as a single row claimed with a
// conditional upsert, so exactly one process wins even across replicas.
type Postgres struct {
	db     Execer
	holder string
}

// NewPostgres builds a Postgres lease with a unique holder identity.
func NewPostgres(db Execer) *Postgres {
	return &Postgres{db: db, holder: uuid.NewString()}
}

const acquireSQL = `
INSERT INTO sync_lease (id, holder, expires_at)
VALUES (1, $1, now() + $2)
ON CONFLICT (id) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE sync_lease.expires_at < now()`

const releaseSQL = `DELETE FROM sync_lease WHERE id = 1 AND holder = $1`

// Acquire implements listing.Lease.
func (p *Postgres) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	tag, err := p.db.Exec(ctx, acquireSQL, p.holder, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release implements listing.Lease. Only the current holder's row is
// removed; a lease taken over by another process is left alone.
func (p *Postgres) Release(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, releaseSQL, p.holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
