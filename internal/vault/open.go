package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recvault/recvault/internal/blobstore"
	"github.com/recvault/recvault/internal/config"
	"github.com/recvault/recvault/internal/index"
)

// Open wires up the blob store and index described by cfg and returns the
// coordinator plus a close function for the underlying stores.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Vault, func() error, error) {
	var (
		blobs blobstore.BlobStore
		err   error
	)
	switch cfg.Storage.Backend {
	case "fs":
		blobs, err = blobstore.NewFSStore(cfg.RecordingsRoot)
	case "s3":
		blobs, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Bucket:    cfg.Storage.S3.Bucket,
			UseSSL:    cfg.Storage.S3.UseSSL,
		})
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}

	var idx index.Index
	switch cfg.Index.Driver {
	case "bolt":
		idx, err = index.NewBoltIndex(cfg.DatabasePath())
	case "sqlite":
		idx, err = index.NewSQLIndex(cfg.DatabasePath())
	default:
		return nil, nil, fmt.Errorf("unknown index driver %q", cfg.Index.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}

	return New(blobs, idx, logger), idx.Close, nil
}
