package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/telemetry"
)

func sample(id, machine string, volume int) telemetry.Reading {
	return telemetry.Reading{
		ID:          id,
		Maquina:     machine,
		Volume:      volume,
		Temperatura: 60,
		DataHora:    time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestFileStorageStoreAndList(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "readings"))
	require.NoError(t, err)

	require.NoError(t, fs.Store(ctx, sample("a", "M1", 10)))
	require.NoError(t, fs.Store(ctx, sample("b", "M2/line", 20)))
	require.NoError(t, fs.Store(ctx, sample("c", "", 30)))

	readings, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 3)

	sort.Slice(readings, func(i, j int) bool { return readings[i].ID < readings[j].ID })
	assert.Equal(t, sample("a", "M1", 10), readings[0])
	assert.Equal(t, "M2/line", readings[1].Maquina)
	assert.Equal(t, 30, readings[2].Volume)
}

func TestFileStorageDuplicateIDOverwrites(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Store(ctx, sample("same", "M1", 10)))
	require.NoError(t, fs.Store(ctx, sample("same", "M1", 99)))

	readings, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 99, readings[0].Volume)
}

func TestFileStorageKeepsDotNamesInsideBase(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	base := filepath.Join(root, "data")
	fs, err := NewFileStorage(base)
	require.NoError(t, err)

	require.NoError(t, fs.Store(ctx, sample("x1", "..", 10)))
	require.NoError(t, fs.Store(ctx, sample("x2", ".", 20)))
	require.NoError(t, fs.Store(ctx, sample("..", "M1", 30)))

	_, err = os.Stat(filepath.Join(root, "x1.json"))
	assert.True(t, os.IsNotExist(err), "reading written outside the storage dir")
	_, err = os.Stat(filepath.Join(base, "x2.json"))
	assert.True(t, os.IsNotExist(err), "reading written into the storage dir itself")

	readings, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	sort.Slice(readings, func(i, j int) bool { return readings[i].Volume < readings[j].Volume })
	assert.Equal(t, "..", readings[0].Maquina)
	assert.Equal(t, ".", readings[1].Maquina)
	assert.Equal(t, "..", readings[2].ID)
}

func TestFileStorageConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			errs <- fs.Store(ctx, sample("same", "M1", v))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	readings, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	leftovers, err := filepath.Glob(filepath.Join(dir, "M1", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStorageSkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Store(ctx, sample("ok", "M1", 10)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))

	readings, err := fs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "redis"})
	assert.ErrorContains(t, err, "unsupported storage type")
}

func TestNewFileBackend(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{Type: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, b)
	assert.NoError(t, b.Close())
}
