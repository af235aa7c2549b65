package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/soft_call/pkg/callsession"
	"github.com/arzzra/soft_call/pkg/engine/mockengine"
	"github.com/arzzra/soft_call/pkg/notify"
)

// fakePresenter запоминает запросы презентации
type fakePresenter struct {
	mu       sync.Mutex
	incoming []notify.Invitation
	missed   []notify.Invitation
	ongoing  []time.Duration

	dismissedIncoming []string
	dismissedOngoing  int
}

func (p *fakePresenter) ShowIncoming(inv notify.Invitation) {
	p.mu.Lock()
	p.incoming = append(p.incoming, inv)
	p.mu.Unlock()
}

func (p *fakePresenter) ShowOngoing(sessionID string, kind callsession.CallKind, d time.Duration) {
	p.mu.Lock()
	p.ongoing = append(p.ongoing, d)
	p.mu.Unlock()
}

func (p *fakePresenter) ShowMissed(inv notify.Invitation) {
	p.mu.Lock()
	p.missed = append(p.missed, inv)
	p.mu.Unlock()
}

func (p *fakePresenter) DismissIncoming(sessionID string) {
	p.mu.Lock()
	p.dismissedIncoming = append(p.dismissedIncoming, sessionID)
	p.mu.Unlock()
}

func (p *fakePresenter) DismissOngoing() {
	p.mu.Lock()
	p.dismissedOngoing++
	p.mu.Unlock()
}

func (p *fakePresenter) missedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.missed)
}

func (p *fakePresenter) ongoingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ongoing)
}

func (p *fakePresenter) dismissedOngoingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissedOngoing
}

type staticGateway struct{}

func (staticGateway) RequestCredential(ctx context.Context, sessionID string, kind callsession.CallKind) (callsession.JoinCredential, error) {
	return callsession.JoinCredential{AppID: "app", Token: "tok", ChannelName: sessionID, UID: 1}, nil
}

type nopSync struct{}

func (nopSync) NotifyJoin(ctx context.Context, sessionID string, uid uint32) error  { return nil }
func (nopSync) NotifyLeave(ctx context.Context, sessionID string, uid uint32) error { return nil }
func (nopSync) NotifyEnd(ctx context.Context, sessionID string) error               { return nil }
func (nopSync) StartRecording(ctx context.Context, sessionID string) error          { return nil }
func (nopSync) StopRecording(ctx context.Context, sessionID string) (string, error) {
	return "", nil
}

type bridgeStack struct {
	bridge *notify.Bridge
	sess   *callsession.Session
	pres   *fakePresenter
	eng    *mockengine.Engine
	navCh  chan notify.Command
}

func newBridgeStack(t *testing.T, ringTimeout time.Duration) *bridgeStack {
	t.Helper()

	eng := mockengine.New()
	scfg := callsession.DefaultSessionConfig()
	scfg.Gateway = staticGateway{}
	scfg.Engine = eng
	scfg.Sync = nopSync{}
	scfg.TickInterval = 10 * time.Millisecond
	scfg.Logger = zerolog.Nop()
	sess, err := callsession.NewSession(scfg)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	pres := &fakePresenter{}
	navCh := make(chan notify.Command, 4)

	bcfg := notify.DefaultConfig()
	bcfg.Session = sess
	bcfg.Presenter = pres
	bcfg.RingTimeout = ringTimeout
	bcfg.RefreshInterval = 10 * time.Millisecond
	bcfg.Logger = zerolog.Nop()
	bcfg.OnNavigate = func(cmd notify.Command) { navCh <- cmd }

	b, err := notify.NewBridge(bcfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return &bridgeStack{bridge: b, sess: sess, pres: pres, eng: eng, navCh: navCh}
}

func TestBridgeDeliverShowsIncoming(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	bs.bridge.Deliver(notify.Invitation{SessionID: "sess-1", Kind: callsession.CallKindVideo, CallerName: "Анна"})

	bs.pres.mu.Lock()
	defer bs.pres.mu.Unlock()
	require.Len(t, bs.pres.incoming, 1)
	assert.Equal(t, "Анна", bs.pres.incoming[0].CallerName)
	assert.False(t, bs.pres.incoming[0].ReceivedAt.IsZero())
}

// TestBridgeRingTimeout неотвеченное приглашение становится пропущенным
func TestBridgeRingTimeout(t *testing.T) {
	bs := newBridgeStack(t, 30*time.Millisecond)

	bs.bridge.Deliver(notify.Invitation{SessionID: "sess-1", Kind: callsession.CallKindAudio})

	require.Eventually(t, func() bool {
		return bs.pres.missedCount() == 1
	}, time.Second, 5*time.Millisecond)

	bs.pres.mu.Lock()
	defer bs.pres.mu.Unlock()
	assert.Equal(t, []string{"sess-1"}, bs.pres.dismissedIncoming)
	assert.Equal(t, "sess-1", bs.pres.missed[0].SessionID)
}

// TestBridgeAccept accept снимает приглашение, гасит презентацию и
// подключает сессию с видом звонка из приглашения
func TestBridgeAccept(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	bs.bridge.Deliver(notify.Invitation{SessionID: "sess-1", Kind: callsession.CallKindVideo})
	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionAccept,
		SessionID: "sess-1",
	}))

	snap := bs.sess.Snapshot()
	assert.Equal(t, callsession.StatusConnected, snap.Status)
	require.NotNil(t, snap.Session)
	assert.Equal(t, callsession.CallKindVideo, snap.Session.Kind, "вид звонка взят из приглашения")

	bs.pres.mu.Lock()
	defer bs.pres.mu.Unlock()
	assert.Equal(t, []string{"sess-1"}, bs.pres.dismissedIncoming)
	assert.Empty(t, bs.pres.missed, "принятое приглашение не становится пропущенным")
}

// TestBridgeAcceptWithoutInvitation холодный accept (например из push
// на мёртвом процессе) подключается с дефолтным видом
func TestBridgeAcceptWithoutInvitation(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionAccept,
		SessionID: "sess-2",
	}))

	snap := bs.sess.Snapshot()
	assert.Equal(t, callsession.StatusConnected, snap.Status)
	assert.Equal(t, callsession.CallKindAudio, snap.Session.Kind)
}

func TestBridgeDecline(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	bs.bridge.Deliver(notify.Invitation{SessionID: "sess-1", Kind: callsession.CallKindAudio})
	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionDecline,
		SessionID: "sess-1",
	}))

	assert.Equal(t, callsession.StatusWaiting, bs.sess.Status(), "decline не трогает сессию")

	// Таймер снят: пропущенный не появится
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, bs.pres.missedCount())
}

// TestBridgeOngoingRefresh после подключения уведомление идущего звонка
// периодически обновляется живой длительностью
func TestBridgeOngoingRefresh(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionAccept,
		SessionID: "sess-1",
		Kind:      callsession.CallKindAudio,
	}))

	require.Eventually(t, func() bool {
		return bs.pres.ongoingCount() >= 3
	}, time.Second, 5*time.Millisecond)
}

// TestBridgeHangupDismissesOngoing hangup завершает звонок и убирает
// уведомление идущего звонка
func TestBridgeHangupDismissesOngoing(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionAccept,
		SessionID: "sess-1",
		Kind:      callsession.CallKindAudio,
	}))
	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action: notify.ActionHangup,
	}))

	assert.Equal(t, callsession.StatusEnded, bs.sess.Status())
	require.Eventually(t, func() bool {
		return bs.pres.dismissedOngoingCount() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeNavigationActions(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)

	require.NoError(t, bs.bridge.HandleCommand(context.Background(), notify.Command{
		Action:    notify.ActionCallback,
		SessionID: "sess-1",
	}))

	select {
	case cmd := <-bs.navCh:
		assert.Equal(t, notify.ActionCallback, cmd.Action)
	case <-time.After(time.Second):
		t.Fatal("навигация не получила команду")
	}
}

func TestBridgeUnknownAction(t *testing.T) {
	bs := newBridgeStack(t, time.Minute)
	err := bs.bridge.HandleCommand(context.Background(), notify.Command{Action: "snooze"})
	require.Error(t, err)
}
