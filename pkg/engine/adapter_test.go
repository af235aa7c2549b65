package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/soft_call/pkg/callsession"
)

// fakeSDK минимальный RTCEngine, запоминающий вызовы и отдающий
// зарегистрированные callbacks обратно тесту
type fakeSDK struct {
	mu    sync.Mutex
	cb    Callbacks
	calls []string

	initErr error
	joinErr error
}

func (f *fakeSDK) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeSDK) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeSDK) Init(appID string) error {
	f.record("init:" + appID)
	return f.initErr
}

func (f *fakeSDK) SetCallbacks(cb Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *fakeSDK) JoinChannel(token, channel string, uid uint32, video bool) error {
	f.record("join:" + channel)
	return f.joinErr
}

func (f *fakeSDK) LeaveChannel() error {
	f.record("leave")
	return nil
}

func (f *fakeSDK) MuteLocalAudio(muted bool) error {
	f.record("mute")
	return nil
}

func (f *fakeSDK) EnableLocalVideo(enabled bool) error {
	f.record("video")
	return nil
}

func (f *fakeSDK) SwitchCamera() error {
	f.record("camera")
	return nil
}

func (f *fakeSDK) SetSpeakerphone(on bool) error {
	f.record("speaker")
	return nil
}

func newTestAdapter(t *testing.T, sdk *fakeSDK, bufferSize int) *Adapter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SDK = sdk
	if bufferSize > 0 {
		cfg.BufferSize = bufferSize
	}
	a, err := NewAdapter(cfg)
	require.NoError(t, err)
	return a
}

func TestAdapterRequiresSDK(t *testing.T) {
	_, err := NewAdapter(DefaultConfig())
	var callErr *callsession.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, callsession.ErrorKindEngine, callErr.Kind)
}

// TestAdapterInitializeIdempotent повторная инициализация - no-op
func TestAdapterInitializeIdempotent(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 0)

	require.NoError(t, a.Initialize(context.Background(), "app-1"))
	require.NoError(t, a.Initialize(context.Background(), "app-1"))

	assert.Equal(t, []string{"init:app-1"}, sdk.callList())
}

func TestAdapterInitError(t *testing.T) {
	sdk := &fakeSDK{initErr: errors.New("sdk сломан")}
	a := newTestAdapter(t, sdk, 0)

	err := a.Initialize(context.Background(), "app-1")
	var callErr *callsession.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "ENGINE_INIT_FAILED", callErr.Code)

	// После ошибки инициализация не считается выполненной
	sdk.initErr = nil
	require.NoError(t, a.Initialize(context.Background(), "app-1"))
	assert.Len(t, sdk.callList(), 2)
}

func TestAdapterJoinError(t *testing.T) {
	sdk := &fakeSDK{joinErr: errors.New("канал занят")}
	a := newTestAdapter(t, sdk, 0)

	err := a.Join(context.Background(), callsession.JoinCredential{ChannelName: "ch"}, callsession.CallKindAudio)
	var callErr *callsession.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, callsession.ErrorKindEngine, callErr.Kind)
}

// TestAdapterEventOrdering callbacks SDK сохраняют порядок доставки
// в канале событий
func TestAdapterEventOrdering(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 0)

	sdk.cb.OnLocalJoined(1)
	sdk.cb.OnUserJoined(5)
	sdk.cb.OnAudioMuteChanged(5, true)
	sdk.cb.OnUserLeft(5, 0)

	want := []callsession.EngineEventType{
		callsession.EngineEventLocalJoined,
		callsession.EngineEventParticipantJoined,
		callsession.EngineEventAudioMuteChanged,
		callsession.EngineEventParticipantLeft,
	}
	for _, wt := range want {
		ev := <-a.Events()
		assert.Equal(t, wt, ev.Type)
	}
}

// TestAdapterDropOldest при переполнении буфера отбрасывается самое
// старое событие, новые продолжают приниматься
func TestAdapterDropOldest(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 2)

	sdk.cb.OnUserJoined(1)
	sdk.cb.OnUserJoined(2)
	sdk.cb.OnUserJoined(3) // вытесняет событие для 1

	assert.Equal(t, uint64(1), a.DroppedEvents())

	ev := <-a.Events()
	assert.Equal(t, uint32(2), ev.UID)
	ev = <-a.Events()
	assert.Equal(t, uint32(3), ev.UID)
}

func TestAdapterQualityMapping(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 0)

	sdk.cb.OnNetworkQuality(5, SDKQualityVeryBad)
	ev := <-a.Events()
	assert.Equal(t, callsession.QualityVeryBad, ev.Quality)

	sdk.cb.OnNetworkQuality(5, 42) // неизвестный уровень
	ev = <-a.Events()
	assert.Equal(t, callsession.QualityUnknown, ev.Quality)
}

func TestAdapterConnStateMapping(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 0)

	sdk.cb.OnConnectionChanged(SDKConnReconnecting, "потеря сети")
	ev := <-a.Events()
	assert.Equal(t, callsession.ConnStateReconnecting, ev.State)
	assert.Equal(t, "потеря сети", ev.Reason)

	sdk.cb.OnConnectionChanged(99, "")
	ev = <-a.Events()
	assert.Equal(t, callsession.ConnStateDisconnected, ev.State)
}

// TestAdapterLeaveBestEffort ошибка SDK при leave не возвращается наверх
func TestAdapterLeaveBestEffort(t *testing.T) {
	sdk := &fakeSDK{}
	a := newTestAdapter(t, sdk, 0)
	require.NoError(t, a.Leave(context.Background()))
	assert.Contains(t, sdk.callList(), "leave")
}
