package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafed/fednode/pkg/fednode"
	"github.com/datafed/fednode/pkg/fednode/storage/fs"
)

func TestFSBackendCreation(t *testing.T) {
	t.Run("RequiresBaseDir", func(t *testing.T) {
		store, err := fs.New(fs.Config{})
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("CreatesBaseDir", func(t *testing.T) {
		baseDir := filepath.Join(t.TempDir(), "blobs")

		store, err := fs.New(fs.Config{BaseDir: baseDir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, baseDir)
	})
}

func TestFSBackend(t *testing.T) {
	baseDir := t.TempDir()
	store, err := fs.New(fs.Config{BaseDir: baseDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("UploadAndDownload", func(t *testing.T) {
		err := store.Upload(ctx, "packages/one/content", strings.NewReader("blob-bytes"))
		require.NoError(t, err)

		reader, err := store.Download(ctx, "packages/one/content")
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "blob-bytes", string(data))
	})

	t.Run("Download_NotFound", func(t *testing.T) {
		_, err := store.Download(ctx, "packages/absent/content")
		assert.ErrorIs(t, err, fednode.ErrBlobNotFound)
	})

	t.Run("Meta", func(t *testing.T) {
		require.NoError(t, store.Upload(ctx, "packages/two/content", strings.NewReader("0123456789")))

		meta, err := store.Meta(ctx, "packages/two/content")
		require.NoError(t, err)
		assert.Equal(t, "packages/two/content", meta.Key)
		assert.Equal(t, int64(10), meta.Size)
		assert.NotEmpty(t, meta.ContentType)
		assert.False(t, meta.UpdatedAt.IsZero())
	})

	t.Run("Meta_NotFound", func(t *testing.T) {
		_, err := store.Meta(ctx, "packages/absent/content")
		assert.ErrorIs(t, err, fednode.ErrBlobNotFound)
	})

	t.Run("DeleteCleansEmptyDirectories", func(t *testing.T) {
		require.NoError(t, store.Upload(ctx, "packages/three/content", strings.NewReader("doomed")))

		require.NoError(t, store.Delete(ctx, "packages/three/content"))

		_, err := store.Download(ctx, "packages/three/content")
		assert.ErrorIs(t, err, fednode.ErrBlobNotFound)

		// the emptied key directory is removed, the base directory stays
		_, err = os.Stat(filepath.Join(baseDir, "packages", "three"))
		assert.True(t, os.IsNotExist(err))
		assert.DirExists(t, baseDir)
	})

	t.Run("Delete_NotFound", func(t *testing.T) {
		err := store.Delete(ctx, "packages/absent/content")
		assert.ErrorIs(t, err, fednode.ErrBlobNotFound)
	})
}

func TestFSBackendPersistence(t *testing.T) {
	baseDir := t.TempDir()
	ctx := context.Background()

	first, err := fs.New(fs.Config{BaseDir: baseDir})
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "packages/durable/content", strings.NewReader("survives restarts")))

	// a fresh backend over the same directory sees the stored blob
	second, err := fs.New(fs.Config{BaseDir: baseDir})
	require.NoError(t, err)

	reader, err := second.Download(ctx, "packages/durable/content")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "survives restarts", string(data))
}
