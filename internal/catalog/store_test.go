// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedVideo(t *testing.T, store *Store, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), Video{
		ID:        id,
		Title:     "Video " + id,
		Filename:  id + ".mp4",
		Uploader:  "alice",
		CreatedAt: createdAt,
	}))
}

func TestStoreCreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Video{
		ID:          "v1",
		Title:       "First",
		Description: "a test video",
		Filename:    "first.mp4",
		Uploader:    "alice",
		SizeBytes:   1234,
	}))

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "alice", got.Uploader)
	assert.Equal(t, StatusProcessing, got.Status, "defaults to processing")
	assert.Equal(t, int64(1234), got.SizeBytes)
	assert.Nil(t, got.ProcessedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreGetUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedVideo(t, store, fmt.Sprintf("v%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	page1, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "v4", page1[0].ID, "newest first")
	assert.Equal(t, "v3", page1[1].ID)

	page2, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "v2", page2[0].ID)

	page3, err := store.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "v0", page3[0].ID)

	empty, err := store.List(ctx, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Nonsense paging parameters fall back to defaults.
	fallback, err := store.List(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, fallback, 5)
}

func TestStoreSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Video{ID: "a", Title: "Summer Holiday", Filename: "a.mp4"}))
	require.NoError(t, store.Create(ctx, Video{ID: "b", Title: "Winter", Description: "holiday on ice", Filename: "b.mp4"}))
	require.NoError(t, store.Create(ctx, Video{ID: "c", Title: "Unrelated", Filename: "c.mp4"}))

	got, err := store.Search(ctx, "Holiday")
	require.NoError(t, err)
	require.Len(t, got, 2, "matches title and description")

	none, err := store.Search(ctx, "nomatch")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreUpdateMetadataOwnerCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedVideo(t, store, "v1", time.Now().UTC())

	got, err := store.UpdateMetadata(ctx, "v1", "alice", "New Title", "new description")
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)
	assert.Equal(t, "new description", got.Description)

	_, err = store.UpdateMetadata(ctx, "v1", "mallory", "Stolen", "")
	assert.ErrorIs(t, err, ErrForbidden)

	unchanged, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", unchanged.Title)
}

func TestStoreSetReady(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedVideo(t, store, "v1", time.Now().UTC())

	err := store.SetReady(ctx, "v1", []string{"480p", "720p"}, "/hls/v1/master.m3u8", 93, 1280, 720)
	require.NoError(t, err)

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, []string{"480p", "720p"}, got.Qualities)
	assert.Equal(t, "/hls/v1/master.m3u8", got.HLSURL)
	assert.Equal(t, 93, got.DurationSeconds)
	assert.Equal(t, 1280, got.Width)
	require.NotNil(t, got.ProcessedAt)

	assert.ErrorIs(t, store.SetReady(ctx, "missing", nil, "", 0, 0, 0), ErrNotFound)
}

func TestStoreSetError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedVideo(t, store, "v1", time.Now().UTC())

	require.NoError(t, store.SetError(ctx, "v1"))

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	require.NotNil(t, got.ProcessedAt)

	assert.ErrorIs(t, store.SetError(ctx, "missing"), ErrNotFound)
}

func TestStoreCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedVideo(t, store, "v1", time.Now().UTC())

	require.NoError(t, store.IncrementViews(ctx, "v1"))
	require.NoError(t, store.IncrementViews(ctx, "v1"))
	require.NoError(t, store.IncrementLikes(ctx, "v1"))
	require.NoError(t, store.AddCounts(ctx, "v1", 10, 5))

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Views)
	assert.Equal(t, int64(6), got.Likes)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedVideo(t, store, "v1", time.Now().UTC())

	require.NoError(t, store.Delete(ctx, "v1"))
	_, err := store.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "v1"), ErrNotFound)
}
