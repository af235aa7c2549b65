package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/soft_call/pkg/callsession"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		AuthToken: "secret",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestRequestCredential(t *testing.T) {
	var gotPath, gotAuth, gotReqID string
	var gotBody map[string]any

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"appId":       "app-1",
			"token":       "tok-1",
			"channelName": "ch-1",
			"uid":         7,
		})
	}))

	cred, err := c.RequestCredential(context.Background(), "sess-1", callsession.CallKindVideo)
	require.NoError(t, err)

	assert.Equal(t, "/calls/token", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.NotEmpty(t, gotReqID, "каждый запрос несёт X-Request-ID")
	assert.Equal(t, "sess-1", gotBody["sessionId"])
	assert.Equal(t, "video", gotBody["callKind"])

	assert.Equal(t, callsession.JoinCredential{
		AppID:       "app-1",
		Token:       "tok-1",
		ChannelName: "ch-1",
		UID:         7,
	}, cred)
}

// TestRequestCredentialServerError не-2xx оборачивается в типизированную
// retryable ошибку реквизитов
func TestRequestCredentialServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token service down", http.StatusBadGateway)
	}))

	_, err := c.RequestCredential(context.Background(), "sess-1", callsession.CallKindAudio)
	var callErr *callsession.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, callsession.ErrorKindCredential, callErr.Kind)
	assert.True(t, callErr.IsRetryable())
	assert.Contains(t, callErr.Unwrap().Error(), "502")
}

func TestNotifyEndpoints(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	require.NoError(t, c.NotifyJoin(ctx, "sess-1", 7))
	require.NoError(t, c.NotifyLeave(ctx, "sess-1", 7))
	require.NoError(t, c.NotifyEnd(ctx, "sess-1"))

	assert.Equal(t, []string{"/calls/join", "/calls/leave", "/calls/end"}, paths)
}

func TestStopRecordingReturnsURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calls/recording/stop", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"recordingUrl": "https://cdn.example.com/rec/1.mp4",
		})
	}))

	url, err := c.StopRecording(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/rec/1.mp4", url)
}

func TestGetSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calls/session/sess-1", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(SessionInfo{
			SessionID: "sess-1",
			CallKind:  "audio",
			Active:    true,
		})
	}))

	info, err := c.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, "audio", info.CallKind)
}

func TestGetParticipants(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]ParticipantInfo{
			{UID: 1, DisplayName: "Анна", Role: "coach"},
			{UID: 2, DisplayName: "Борис", Role: "client"},
		})
	}))

	list, err := c.GetParticipants(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "coach", list[0].Role)
}
