package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepress/internal/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("localfs by default", func(t *testing.T) {
		p, err := NewProvider(ctx, config.StorageConfig{LocalRoot: filepath.Join(t.TempDir(), "pdfs")})
		require.NoError(t, err)
		assert.Equal(t, "localfs", p.Provider())
	})

	t.Run("gdrive", func(t *testing.T) {
		p, err := NewProvider(ctx, config.StorageConfig{
			Provider:          "gdrive",
			DriveClientID:     "id",
			DriveClientSecret: "secret",
			DriveRefreshToken: "refresh",
		})
		require.NoError(t, err)
		assert.Equal(t, "gdrive", p.Provider())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewProvider(ctx, config.StorageConfig{Provider: "s3"})
		assert.ErrorContains(t, err, "unknown storage provider")
	})
}
