// Package database opens the SQLite file that persists the ledger and
// applies embedded schema migrations.
//
// Connections always enable foreign keys. WAL mode is optional and lets
// API readers proceed while a ledger commit is in flight. Migrations are
// pairs of YYYYMMDD_HHMMSS_name.up.sql / .down.sql files registered by
// the migrations package.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
