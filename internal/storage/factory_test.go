package storage

import (
	"context"
	"testing"

	"docsign/internal/config"
)

func TestNewObjectStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}, want: "*storage.MemoryStore"},
		{name: "filesystem", cfg: config.StorageConfig{Type: "filesystem", FSRoot: t.TempDir()}, want: "*storage.FileSystemStore"},
		{name: "filesystem without root", cfg: config.StorageConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewObjectStoreFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewObjectStoreFromConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewObjectStoreFromConfig() error = %v", err)
			}
			switch got.(type) {
			case *MemoryStore:
				if tt.want != "*storage.MemoryStore" {
					t.Errorf("got %T, want %s", got, tt.want)
				}
			case *FileSystemStore:
				if tt.want != "*storage.FileSystemStore" {
					t.Errorf("got %T, want %s", got, tt.want)
				}
			default:
				t.Errorf("unexpected store type %T", got)
			}
		})
	}
}
