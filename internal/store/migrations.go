package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/hyperengineering/habitstore/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations brings db up to the embedded schema.
func RunMigrations(db *sql.DB) error {
	return migrate(db, migrations.FS)
}

// migrate applies every pending migration in fsys. A provider is built per
// call so no goose package state is shared between stores.
func migrate(db *sql.DB, fsys fs.FS) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if _, err := p.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
