package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "snap.sqlite3")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "snap.sqlite3")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	ver, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ver)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.sqlite3")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	ver, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ver)
}

func TestStore_CloseNil(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}

func TestSnapshotStore_Folders(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	folders := []mailapi.Folder{
		{ID: 7, DisplayName: "Inbox", Role: mailapi.RoleInbox, UnreadCount: 2},
		{ID: 8, DisplayName: "Sent", Role: mailapi.RoleSent},
	}
	require.NoError(t, ss.SaveFolders(ctx, "me@x.io", folders))

	got, err := ss.LoadFolders(ctx, "me@x.io")
	require.NoError(t, err)
	assert.Equal(t, folders, got)

	// replace drops stale entries
	require.NoError(t, ss.SaveFolders(ctx, "me@x.io", folders[:1]))
	got, err = ss.LoadFolders(ctx, "me@x.io")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := ss.LoadFolders(ctx, "other@x.io")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSnapshotStore_Views(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()

	_, found, err := ss.LoadView(ctx, "me", "folder:7")
	require.NoError(t, err)
	assert.False(t, found)

	items := []mailapi.MessageSummary{
		{ID: 1, Subject: "a", ReceivedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Subject: "b", IsStarred: true},
	}
	require.NoError(t, ss.SaveView(ctx, "me", "folder:7", items, 12))
	require.NoError(t, ss.SaveView(ctx, "me", "folder:7", items[:1], 11))

	snap, found, err := ss.LoadView(ctx, "me", "folder:7")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 11, snap.Total)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "a", snap.Items[0].Subject)
	assert.True(t, snap.Items[0].ReceivedAt.Equal(items[0].ReceivedAt))

	require.NoError(t, ss.Clear(ctx, "me"))
	_, found, err = ss.LoadView(ctx, "me", "folder:7")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotStore_Validation(t *testing.T) {
	ss := NewSnapshotStore(openTestStore(t))
	ctx := context.Background()
	assert.Error(t, ss.SaveFolders(ctx, " ", nil))
	assert.Error(t, ss.SaveView(ctx, "me", "", nil, 0))

	var nilStore *SnapshotStore
	_, err := nilStore.LoadFolders(ctx, "me")
	assert.Error(t, err)
	assert.Nil(t, NewSnapshotStore(nil))
}
