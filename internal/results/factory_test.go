package results

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiam/ecswait/internal/config"
)

func TestNew_LocalStores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		store string
		want  Store
	}{
		{config.ResultStoreNone, Discard{}},
		{config.ResultStoreMemory, &MemoryStore{}},
		{config.ResultStoreFile, &FileStore{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.store, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewConfig()
			cfg.Results.Store = tt.store
			cfg.Results.Path = t.TempDir()

			store, err := New(context.Background(), cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestNew_RejectsUnknownStore(t *testing.T) {
	t.Parallel()
	cfg := config.NewConfig()
	cfg.Results.Store = "etcd"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNew_RedisRejectsBadURL(t *testing.T) {
	t.Parallel()
	cfg := config.NewConfig()
	cfg.Results.Store = config.ResultStoreRedis
	cfg.Results.RedisURL = "not-a-url://"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}
