// Package database provides the SQLite connection used for preferences and
// brightness history.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Schema migrations embedded from the migrations package
//   - Health checks and transaction helpers
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or have DEFAULT values,
// and each migration ships an .up.sql and a .down.sql file.
package database
