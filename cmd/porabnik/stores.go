package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/porabnik/internal/blob"
	"github.com/erazemk/porabnik/internal/config"
	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// openDatabase opens the configured database, creating missing tables.
func openDatabase(path string) (*sql.DB, error) {
	return db.OpenWithSchema(path)
}

// newBlobStore builds the configured blob backend.
func newBlobStore(cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case config.BlobBackendS3:
		return blob.NewS3(cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return blob.NewFS(cfg.Dir)
	}
}

// officeByName looks up an office, failing when it does not exist.
func officeByName(ctx context.Context, database *sql.DB, name string) (*model.Office, error) {
	office, err := store.GetOfficeByName(ctx, database, name)
	if err != nil {
		return nil, err
	}
	if office == nil {
		return nil, fmt.Errorf("office %q does not exist", name)
	}
	return office, nil
}
