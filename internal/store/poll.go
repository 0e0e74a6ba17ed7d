package store

import (
	"context"
	"time"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/watch"
)

// DefaultPollInterval is used by PollExternal when no interval is given.
const DefaultPollInterval = 500 * time.Millisecond

// PollExternal notices commits made through other connections to the same
// database file (another stockledger process, the replication layer) and
// publishes a watch.ChangeExternal on the store's hub for each poll that
// sees one. Writes through this Store are not reported again; WithTx
// already publishes them.
//
// The baseline is read before PollExternal returns, so every commit after
// the call is noticed. Polling stops when ctx is done; the returned func
// blocks until the poller has exited.
func (s *Store) PollExternal(ctx context.Context, interval time.Duration, onErr func(error)) (func(), error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	last, err := s.dataVersion(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			version, err := s.dataVersion(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			if version != last {
				last = version
				s.hub.Publish(watch.Change{Kind: watch.ChangeExternal})
			}
		}
	}()

	return func() { <-done }, nil
}

// dataVersion reads PRAGMA data_version. SQLite bumps it on the reading
// connection whenever another connection commits, never for its own commits.
// The store holds a single connection, so the value is stable across calls.
func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, ledger.NewPersistenceError("data version", err)
	}
	return version, nil
}
