package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/proto"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	identity, err := env.auth.Verify(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.DisplayName, "display name defaults to username")
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/rooms", "/api/rooms/1/messages", "/api/users/1/presence"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = env.do(t, http.MethodGet, path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCreateGroupRoomAndInbox(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	rec := env.do(t, http.MethodPost, "/api/rooms", alice.token, CreateRoomRequest{
		Name:      "team",
		MemberIDs: []int64{bob.id, alice.id},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var room RoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, "team", room.Name)
	assert.Equal(t, "group", room.Type)
	assert.Equal(t, []int64{alice.id, bob.id}, room.Members)

	_, err := env.hub.Send(context.Background(), room.ID, alice.id, "welcome", "")
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/rooms", bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []InboxEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, room.ID, inbox[0].ID)
	assert.Equal(t, 1, inbox[0].UnreadCount)
	require.NotNil(t, inbox[0].LastMessage)
	assert.Equal(t, "welcome", inbox[0].LastMessage.Body)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/read", room.ID), bob.token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rooms", bob.token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Zero(t, inbox[0].UnreadCount)

	rec = env.do(t, http.MethodGet, "/api/rooms", carol.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateRoomValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{name: "missing name", path: "/api/rooms", body: map[string]any{}, status: http.StatusBadRequest},
		{name: "unknown member", path: "/api/rooms", body: CreateRoomRequest{Name: "x", MemberIDs: []int64{999}}, status: http.StatusBadRequest},
		{name: "direct with self", path: "/api/rooms/direct", body: CreateDirectRoomRequest{UserID: alice.id}, status: http.StatusBadRequest},
		{name: "direct with unknown", path: "/api/rooms/direct", body: CreateDirectRoomRequest{UserID: 999}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, alice.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestDirectRoomIsReused(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	first := env.do(t, http.MethodPost, "/api/rooms/direct", alice.token, CreateDirectRoomRequest{UserID: bob.id})
	second := env.do(t, http.MethodPost, "/api/rooms/direct", bob.token, CreateDirectRoomRequest{UserID: alice.id})
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b RoomResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "direct", a.Type)
}

func TestCreateRoomAttachesLiveConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	connB, _ := env.dial(ctx, t, bob.token)

	rec := env.do(t, http.MethodPost, "/api/rooms/direct", alice.token, CreateDirectRoomRequest{UserID: bob.id})
	require.Equal(t, http.StatusOK, rec.Code)
	var room RoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	_, err := env.hub.Send(ctx, room.ID, alice.id, "ping", "")
	require.NoError(t, err)

	out := readUntil(ctx, t, connB, isEvent(proto.EventMessageCreated, string(core.RoomChannel(room.ID))))
	var msg proto.Message
	require.NoError(t, json.Unmarshal(out.Data, &msg))
	assert.Equal(t, "ping", msg.Body)
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	rec := env.do(t, http.MethodPost, "/api/rooms/direct", alice.token, CreateDirectRoomRequest{UserID: bob.id})
	var room RoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	var ids []int64
	for i := 0; i < 5; i++ {
		msg, err := env.hub.Send(context.Background(), room.ID, alice.id, fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	path := fmt.Sprintf("/api/rooms/%d/messages", room.ID)

	rec = env.do(t, http.MethodGet, path+"?limit=2", bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []proto.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 2)
	assert.Equal(t, []string{"m3", "m4"}, []string{page[0].Body, page[1].Body}, "newest page, oldest first")

	rec = env.do(t, http.MethodGet, fmt.Sprintf("%s?before=%d", path, ids[2]), bob.token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 2)
	assert.Equal(t, "m0", page[0].Body)

	rec = env.do(t, http.MethodGet, path, carol.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, path+"?limit=zero", bob.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rooms/abc/messages", bob.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresenceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := testContext(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	path := fmt.Sprintf("/api/users/%d/presence", bob.id)

	rec := env.do(t, http.MethodGet, path, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PresenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Online)
	assert.Nil(t, resp.LastSeen)
	assert.Equal(t, "BOB", resp.DisplayName)

	env.dial(ctx, t, bob.token)

	rec = env.do(t, http.MethodGet, path, alice.token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Online)

	rec = env.do(t, http.MethodGet, "/api/users/999/presence", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
