package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCheckpoints(t *testing.T) (*SQLiteStorage, *CheckpointManager) {
	t.Helper()
	store, cleanup := createTestStorage(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	_, err := store.SaveTransactions(ctx, createTestTransactions("alice", 3))
	require.NoError(t, err)
	require.NoError(t, store.UpsertRule(ctx, createTestRule("alice", "merchant", "Shopping")))

	cm, err := store.Checkpoints()
	require.NoError(t, err)
	return store, cm
}

func TestCheckpointManager_Create(t *testing.T) {
	store, cm := setupCheckpoints(t)
	ctx := context.Background()

	info, err := cm.Create(ctx, "before-import", "Before importing March")
	require.NoError(t, err)

	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, 3, info.Transactions)
	assert.Equal(t, 1, info.Rules)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)

	// The copy is a working database
	copied, err := NewSQLiteStorage(filepath.Join(filepath.Dir(store.Path()), "checkpoints", "before-import.db"))
	require.NoError(t, err)
	defer func() { _ = copied.Close() }()
	rules, err := copied.ListRules(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)
}

func TestCheckpointManager_InvalidTags(t *testing.T) {
	_, cm := setupCheckpoints(t)

	for _, tag := range []string{"../escape", "a/b", `a\b`, " padded"} {
		t.Run(tag, func(t *testing.T) {
			_, err := cm.Create(context.Background(), tag, "")
			assert.ErrorIs(t, err, ErrInvalidCheckpoint)
		})
	}
}

func TestCheckpointManager_ListAndDelete(t *testing.T) {
	_, cm := setupCheckpoints(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, tag := range []string{"first", "second"} {
		at := base.Add(time.Duration(i) * time.Minute)
		cm.now = func() time.Time { return at }
		_, err := cm.Create(ctx, tag, "")
		require.NoError(t, err)
	}

	infos, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "second", infos[0].ID, "newest first")

	require.NoError(t, cm.Delete(ctx, "first"))
	assert.ErrorIs(t, cm.Delete(ctx, "first"), ErrCheckpointNotFound)

	infos, err = cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	_, cm := setupCheckpoints(t)
	ctx := context.Background()

	_, err := cm.Create(ctx, "manual", "kept")
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range maxAutoCheckpoints + 2 {
		at := base.Add(time.Duration(i) * time.Hour)
		cm.now = func() time.Time { return at }
		info, err := cm.AutoCheckpoint(ctx, "cleanup")
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
	}

	infos, err := cm.List(ctx)
	require.NoError(t, err)

	auto := 0
	for _, info := range infos {
		if info.IsAuto {
			auto++
		}
	}
	assert.Equal(t, maxAutoCheckpoints, auto)
	assert.Len(t, infos, maxAutoCheckpoints+1, "manual checkpoints are never pruned")

	oldest := fmt.Sprintf("auto-cleanup-%s.db", base.Format("2006-01-02-150405"))
	_, err = os.Stat(filepath.Join(cm.checkpointsDir, oldest))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpoints_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Checkpoints()
	assert.Error(t, err)
}
