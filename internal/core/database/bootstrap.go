package db

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/logging"
)

const schemaVersion = 1

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// ErrSchemaMismatch means the database was bootstrapped with a different
// embedding dimension than the one configured.
var ErrSchemaMismatch = goerr.New("schema mismatch")

// RenderSchema returns the bootstrap script for the given embedding dimension.
func RenderSchema(dim int) (string, error) {
	if dim <= 0 {
		return "", goerr.New("embedding dimension must be positive", goerr.V("dim", dim))
	}
	raw, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", goerr.Wrap(err, "read initdb.sql")
	}
	tmpl, err := template.New("initdb").Parse(string(raw))
	if err != nil {
		return "", goerr.Wrap(err, "parse initdb.sql")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Dim, Version int }{dim, schemaVersion}); err != nil {
		return "", goerr.Wrap(err, "render initdb.sql")
	}
	return buf.String(), nil
}

// EnsureBootstrapped creates the schema on first use and refuses to run
// against a schema built for another embedding dimension.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, dim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docketgraph_meta'
		)`).Scan(&exists)
	if err != nil {
		return goerr.Wrap(err, "meta table check failed")
	}
	if !exists {
		return runBootstrap(ctxBoot, db, dim)
	}

	var stored int
	err = db.QueryRowContext(ctxBoot,
		`SELECT embed_dim FROM docketgraph_meta WHERE version = $1`, schemaVersion).Scan(&stored)
	if err == sql.ErrNoRows {
		return runBootstrap(ctxBoot, db, dim)
	}
	if err != nil {
		return goerr.Wrap(err, "meta version check failed")
	}
	if stored != dim {
		return goerr.Wrap(ErrSchemaMismatch, "embedding dimension differs from bootstrapped schema",
			goerr.V("schema_dim", stored), goerr.V("configured_dim", dim))
	}
	logging.From(ctx).Debug("schema already bootstrapped", "version", schemaVersion, "dim", dim)
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB, dim int) error {
	script, err := RenderSchema(dim)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin tx")
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return goerr.Wrap(err, "exec bootstrap")
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "commit bootstrap")
	}
	logging.From(ctx).Info("schema bootstrapped", "version", schemaVersion, "dim", dim)
	return nil
}
