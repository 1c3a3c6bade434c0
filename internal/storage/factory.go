package storage

import (
	"context"
	"fmt"

	"docsign/internal/config"
	"docsign/internal/docsign"
)

// NewObjectStoreFromConfig creates an ObjectStore implementation based on the storage config type.
func NewObjectStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (docsign.ObjectStore, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "documents"
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(bucket, cfg.PublicBaseURL, cfg.MaxObjectSize), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem storage requires fs_root to be set")
		}
		return NewFileSystemStore(bucket, cfg.FSRoot, cfg.PublicBaseURL, cfg.MaxObjectSize)
	case "s3":
		cfg.Bucket = bucket
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
