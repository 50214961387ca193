// Package store persists question and answer exchanges served by ragchat.
//
// Every completed request produces an Exchange recording the question, the
// structured query the analyzer derived, the answer, how it was produced and
// the sources it drew on. Backends implement HistoryStore:
//
//   - store/memory: in process, lost on restart
//   - store/sqlite: a local database file
//   - store/postgres: a PostgreSQL table through pgx
//   - store/redis: one key per exchange plus a sorted index
//
// Example:
//
//	import "github.com/smallnest/ragchat/store/sqlite"
//
//	history, err := sqlite.NewSqliteHistoryStore(sqlite.SqliteOptions{
//	    Path: "./history.db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer history.Close()
//
// Load returns an error wrapping ErrNotFound for unknown IDs. List returns
// the most recent exchanges first.
package store
