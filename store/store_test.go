package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthikraju391/matchchat/models"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := OpenWithOptions("history", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msgAt(room, id string, at time.Time) *models.Message {
	return &models.Message{ID: id, ConversationID: room, SenderID: "u1", SenderName: "Ann", Body: "body " + id, CreatedAt: at}
}

func TestListReturnsAscendingCreationOrder(t *testing.T) {
	s := openMem(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	// inserted out of order
	require.NoError(t, s.Append(msgAt("room-a", "m3", base.Add(3*time.Second))))
	require.NoError(t, s.Append(msgAt("room-a", "m1", base.Add(1*time.Second))))
	require.NoError(t, s.Append(msgAt("room-a", "m2", base.Add(2*time.Second))))
	require.NoError(t, s.Append(msgAt("room-b", "other", base)))

	got, err := s.List("room-a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, id := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, id, got[i].ID)
	}
	assert.True(t, got[0].CreatedAt.Equal(base.Add(time.Second)))
}

func TestListLimitKeepsNewest(t *testing.T) {
	s := openMem(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(msgAt("room", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.List("room", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m7", got[0].ID)
	assert.Equal(t, "m9", got[2].ID)
}

func TestListUnknownRoomIsEmpty(t *testing.T) {
	s := openMem(t)
	got, err := s.List("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClosedStore(t *testing.T) {
	s, err := OpenWithOptions("history", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Append(msgAt("r", "m", time.Now())), ErrClosed)
	_, err = s.List("r", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAppendRequiresIdentity(t *testing.T) {
	s := openMem(t)
	require.Error(t, s.Append(&models.Message{Body: "x"}))
}
