// Package database provides the SQLite connection used to persist broker
// state across restarts.
//
// The broker stores two things here: the last requested state of every
// output decoder and the calibrated travel of servo turnouts. Both tables
// are created by the embedded migrations in the top-level migrations
// package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.up.sql with an optional
// matching .down.sql. Each migration runs in its own transaction and is
// recorded in schema_migrations.
//
// The connection pool is limited to one connection: SQLite has a single
// writer and the broker's store funnels every write through one goroutine.
package database
