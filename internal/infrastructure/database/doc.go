// Package database provides SQLite connectivity for the identity store.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys enabled
//   - Schema migrations registered by the top-level migrations package
//   - Transaction helper (WithTx) used by repositories for multi-statement writes
//
// The pool is capped at one open connection, matching SQLite's single-writer
// model. Never call another repository on the same *sql.DB from inside a
// WithTx callback: the callback already holds the only connection.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
