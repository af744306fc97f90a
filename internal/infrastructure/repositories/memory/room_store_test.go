package memory

import (
	"context"
	"testing"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(name string) *ports.RoomRecord {
	return &ports.RoomRecord{
		Name:       domain.RoomName(name),
		Title:      "Movie Night",
		Visibility: domain.VisibilityPublic,
		QueueMode:  domain.QueueModeManual,
	}
}

func TestRoomStoreSaveAndGet(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))

	got, err := store.GetRoomByName(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("foo"), got.Name)
	assert.Equal(t, "Movie Night", got.Title)
}

func TestRoomStoreSaveDuplicate(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))
	err := store.SaveRoom(ctx, testRecord("foo"))
	assert.ErrorIs(t, err, domain.ErrRoomNameTaken)
}

func TestRoomStoreGetMissing(t *testing.T) {
	store := NewRoomStore()

	_, err := store.GetRoomByName(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStoreUpdate(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))

	updated := testRecord("foo")
	updated.Title = "Renamed"
	updated.QueueMode = domain.QueueModeVote
	require.NoError(t, store.UpdateRoom(ctx, updated))

	got, err := store.GetRoomByName(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, domain.QueueModeVote, got.QueueMode)
}

func TestRoomStoreUpdateMissing(t *testing.T) {
	store := NewRoomStore()

	err := store.UpdateRoom(context.Background(), testRecord("ghost"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStoreDelete(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))
	require.NoError(t, store.DeleteRoom(ctx, "foo"))

	_, err := store.GetRoomByName(ctx, "foo")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	assert.ErrorIs(t, store.DeleteRoom(ctx, "foo"), domain.ErrRoomNotFound)
}

func TestRoomStoreIsRoomNameTaken(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	taken, err := store.IsRoomNameTaken(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))

	taken, err = store.IsRoomNameTaken(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestRoomStoreReturnsCopies(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRoom(ctx, testRecord("foo")))

	got, err := store.GetRoomByName(ctx, "foo")
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := store.GetRoomByName(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "Movie Night", again.Title)
}
