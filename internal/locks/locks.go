package locks

import (
	"context"
	"database/sql"
	"hash/fnv"

	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

// Service serializes pipeline stages on named Postgres advisory locks.
// Session locks are taken on a dedicated connection so the lock lifetime
// is exactly the lifetime of the guarded function, independent of any
// surrounding transaction.
type Service struct {
	db  *sql.DB
	log *logger.Logger
}

func New(db *sql.DB, baseLog *logger.Logger) *Service {
	return &Service{db: db, log: baseLog.With("service", "Locks")}
}

// Key64 hashes a lock name into the advisory lock keyspace.
func Key64(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// WithLock runs fn while holding the named lock. Acquisition blocks until
// the current holder releases; release is guaranteed even when fn fails,
// and survives ctx cancellation so the session never leaks the lock.
func (s *Service) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := Key64(name)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return err
	}
	s.log.Info("acquired lock", "name", name, "key", key)

	defer func() {
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
			s.log.Warn("failed to release lock", "name", name, "key", key, "error", err)
			return
		}
		s.log.Info("released lock", "name", name, "key", key)
	}()

	return fn(ctx)
}
