package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// dataVersion reads SQLite's per-connection write counter. It changes
// whenever another connection commits a write, which makes it a cheap
// change signal for the routes table without any trigger machinery.
func dataVersion(db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRow("PRAGMA data_version").Scan(&v)
	return v, err
}

// Watch reloads routes whenever the routes database changes, polling
// data_version at the given interval. It performs one reload up front so
// the router is populated before the first tick, then blocks until ctx
// is cancelled. Run it in a goroutine:
//
//	go router.Watch(ctx, db, 200*time.Millisecond)
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial route load failed", "error", err)
	}
	seen, _ := dataVersion(db)

	r.logger.Info("connectivity: watching routes", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("connectivity: route watch stopped")
			return
		case <-ticker.C:
			ver, err := dataVersion(db)
			if err != nil {
				r.logger.Warn("connectivity: data_version poll failed", "error", err)
				continue
			}
			if ver == seen {
				continue
			}
			r.logger.Info("connectivity: routes changed, reloading", "data_version", ver)
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("connectivity: route reload failed", "error", err)
			}
			seen = ver
		}
	}
}
