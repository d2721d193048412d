package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/modules/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, env *testEnv, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHistoryEndpoints(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		path      string
		wantLimit int
	}{
		{name: "room default limit", path: "/api/rooms/general/messages", wantLimit: 50},
		{name: "room explicit limit", path: "/api/rooms/general/messages?limit=10", wantLimit: 10},
		{name: "room limit capped", path: "/api/rooms/general/messages?limit=1000", wantLimit: 200},
		{name: "dm limit capped", path: "/api/dm/bob/alice?limit=1000", wantLimit: 500},
		{name: "dm non-positive limit", path: "/api/dm/bob/alice?limit=0", wantLimit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.history.messages = []domain.Message{{ID: 7, Content: "hi", Sender: "alice", Room: "general", CreatedAt: stamp, ReadBy: []string{}}}

			status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.wantLimit, env.history.lastLimit)
			var got []domain.Message
			require.NoError(t, json.Unmarshal(body, &got))
			require.Len(t, got, 1)
			assert.Equal(t, uint64(7), got[0].ID)
		})
	}
}

func TestHistoryEndpoints_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/dm/alice/bob", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
	assert.Equal(t, [2]string{"alice", "bob"}, env.history.lastPair)
}

func TestHistoryEndpoints_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.history.err = errors.New("disk on fire")

	for _, path := range []string{"/api/rooms/general/messages", "/api/dm/a/b", "/api/users/alice", "/api/calls/alice"} {
		status, _ := doRequest(t, env, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, status, path)
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	env.history.users["alice"] = &domain.User{Username: "alice", Online: true, Rooms: []string{"general"}}

	status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/users/alice", nil))
	require.Equal(t, http.StatusOK, status)
	var user domain.User
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.Online)

	status, body = doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/users/nobody", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "not_found")
}

func TestCallLog(t *testing.T) {
	env := newTestEnv(t)

	status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/calls/alice?limit=999", nil))
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
	assert.Equal(t, 200, env.history.lastLimit)

	env.history.calls = []domain.CallRecord{{ID: "01J", Caller: "alice", Callee: "bob", Outcome: domain.CallMissed}}
	status, body = doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/calls/alice", nil))
	require.Equal(t, http.StatusOK, status)
	var calls []domain.CallRecord
	require.NoError(t, json.Unmarshal(body, &calls))
	require.Len(t, calls, 1)
	assert.Equal(t, domain.CallMissed, calls[0].Outcome)
}

func TestRoomsAndPresence(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "c1", "set_username", "alice")
	env.send(t, "c1", "join_room", roomPayload{Room: "random"})

	status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, status)
	var rooms RoomListResponse
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms.Rooms, 2)
	assert.Equal(t, "general", rooms.Rooms[0].Name)
	assert.Equal(t, "random", rooms.Rooms[1].Name)
	assert.Equal(t, 1, rooms.Rooms[1].Members)

	status, body = doRequest(t, env, httptest.NewRequest(http.MethodGet, "/api/users/online", nil))
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"usersOnline":["alice"]}`, string(body))
}

func TestHealthAndUpgradeGuard(t *testing.T) {
	env := newTestEnv(t)

	status, body := doRequest(t, env, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)

	status, _ = doRequest(t, env, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-file", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "c1", "set_username", "alice")

	req := multipartUpload(t, map[string]string{"room": "general", "username": "carol"}, "Report.PDF", []byte("%PDF-1.4"))
	status, body := doRequest(t, env, req)

	require.Equal(t, http.StatusCreated, status, string(body))
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "/uploads/V1StGXR8_Z5jdHi6B-myT.pdf", resp.URL)
	assert.Equal(t, "Report.PDF", resp.Original)
	assert.Equal(t, int64(8), resp.Size)
	assert.Equal(t, "general", resp.Room)

	saved, err := os.ReadFile(filepath.Join(env.module.upload.Dir, "V1StGXR8_Z5jdHi6B-myT.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(saved))

	shared := env.emitter.payloads("c1", chat.EventFileMessage)
	require.Len(t, shared, 1)
	file := shared[0].(chat.FileMessagePayload)
	assert.Equal(t, resp.ID, file.ID)
	assert.Equal(t, "carol", file.Username)
	assert.Equal(t, resp.URL, file.URL)

	status, _ = doRequest(t, env, httptest.NewRequest(http.MethodGet, resp.URL, nil))
	assert.Equal(t, http.StatusOK, status)
}

func TestUploadFile_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  []byte
		want     int
	}{
		{name: "missing file", fields: map[string]string{"room": "general", "username": "carol"}, want: http.StatusBadRequest},
		{name: "missing room", fields: map[string]string{"username": "carol"}, filename: "a.txt", content: []byte("x"), want: http.StatusBadRequest},
		{name: "missing username", fields: map[string]string{"room": "general"}, filename: "a.txt", content: []byte("x"), want: http.StatusBadRequest},
		{name: "too large", fields: map[string]string{"room": "general", "username": "carol"}, filename: "big.bin", content: bytes.Repeat([]byte("x"), 1024*1024+1), want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			status, _ := doRequest(t, env, multipartUpload(t, tt.fields, tt.filename, tt.content))

			assert.Equal(t, tt.want, status)
			entries, err := os.ReadDir(env.module.upload.Dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSafeExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"photo.JPG", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{"noext", ""},
		{"trailing.", ""},
		{"evil.p/hp", ""},
		{"weird.ph p", ""},
		{"long.abcdefghijk", ""},
		{"ok.abcdefghi", ".abcdefghi"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, safeExtension(tt.filename))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := start
	limiter := newRateLimiter(3, 2)
	limiter.now = func() time.Time { return clock }
	limiter.lastRefill = start

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow(), "burst token %d", i)
	}
	assert.False(t, limiter.allow())

	clock = start.Add(500 * time.Millisecond)
	assert.True(t, limiter.allow())
	assert.False(t, limiter.allow())

	clock = start.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow())
	}
	assert.False(t, limiter.allow())
}
