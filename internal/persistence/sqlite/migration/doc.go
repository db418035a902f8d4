// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (for example "001_initial_schema.sql") and are read from an fs.FS, usually
// an embedded directory. Applied versions are tracked in the
// schema_migrations table and each file runs inside its own transaction.
package migration
