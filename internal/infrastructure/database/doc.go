// Package database provides the SQLite connection behind the settings store
// and the command audit trail.
//
// This package manages:
//   - Opening the database file with WAL journaling and synchronous=FULL so
//     a volume change survives a power cut straight after it was written
//   - Forward-only schema migrations embedded in the binary
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Settings.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
