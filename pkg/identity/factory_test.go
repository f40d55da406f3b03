package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name            string
		persistenceType string
		config          StoreConfig
		want            interface{}
		wantErr         string
	}{
		{name: "memory", persistenceType: "memory", want: &InMemoryStore{}},
		{name: "inmem alias", persistenceType: "inmem", want: &InMemoryStore{}},
		{name: "default", persistenceType: "", want: &InMemoryStore{}},
		{name: "file", persistenceType: "file", config: StoreConfig{DataDir: t.TempDir()}, want: &FileStore{}},
		{name: "file without dir", persistenceType: "file", wantErr: "dataDir required"},
		{name: "sqlite", persistenceType: "sqlite", config: StoreConfig{SQLiteDSN: "file:" + filepath.Join(t.TempDir(), "f.db")}, want: &SQLiteStore{}},
		{name: "sqlite without dsn", persistenceType: "sqlite", wantErr: "dsn required"},
		{name: "postgres without url", persistenceType: "postgres", wantErr: "connection url required"},
		{name: "unknown", persistenceType: "mongo", wantErr: "unsupported persistence type: mongo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(ctx, tt.persistenceType, tt.config)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}
}
