package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPermission(t *testing.T) {
	perm, ok := RequestPermission(RequestPlayback)
	require.True(t, ok)
	assert.Equal(t, "playback.play-pause", perm)

	perm, ok = RequestPermission(RequestPlayNow)
	require.True(t, ok)
	assert.Equal(t, "manage-queue.add", perm)

	// join, leave and update-user need no grant
	_, ok = RequestPermission(RequestJoin)
	assert.False(t, ok)
	_, ok = RequestPermission(RequestLeave)
	assert.False(t, ok)
	_, ok = RequestPermission(RequestUpdateUser)
	assert.False(t, ok)

	// promote, undo and apply-settings are checked per field in dispatch
	_, ok = RequestPermission(RequestPromote)
	assert.False(t, ok)
	_, ok = RequestPermission(RequestUndo)
	assert.False(t, ok)
	_, ok = RequestPermission(RequestApplySettings)
	assert.False(t, ok)
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	pos := 12.5
	reqs := []RoomRequest{
		&PlaybackRequest{Client: "c1", State: true},
		&SeekRequest{Client: "c1", Value: &pos},
		&AddRequest{Client: "c1", Video: &VideoID{Service: "youtube", ID: "dQw4w9WgXcQ"}},
		&PromoteRequest{Client: "c1", TargetID: "c2", Role: RoleTrustedUser},
		&RestoreQueueRequest{Client: "c1", Discard: true},
	}
	for _, req := range reqs {
		raw, err := MarshalRequest(req)
		require.NoError(t, err)

		decoded, err := UnmarshalRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	}
}

func TestUnmarshalRequestUnknownType(t *testing.T) {
	_, err := UnmarshalRequest([]byte(`{"type":"launch-missiles","data":{}}`))
	assert.Error(t, err)
}
