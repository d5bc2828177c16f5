// Package database provides the SQLite store of the capture service.
//
// The store is small: per-origin device id salts and a log of finished
// capture requests. Both live in one file opened in WAL mode with a single
// pooled connection.
//
// Migrations are plain SQL files passed in as an fs.FS, normally the
// embedded set from the migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database
