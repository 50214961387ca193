// Package sqlite stores question/answer history in a SQLite database file.
//
//	s, err := sqlite.NewSqliteHistoryStore(sqlite.SqliteOptions{
//		Path: "./ragchat.db",
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// The structured query and the source list are stored as JSON text columns.
// Use ":memory:" as the path for a throwaway database.
package sqlite
