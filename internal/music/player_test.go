package music

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Announce(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

func (n *fakeNotifier) contains(text string) bool {
	for _, m := range n.all() {
		if m == text {
			return true
		}
	}
	return false
}

type fakePlayback struct {
	mu      sync.Mutex
	volume  float64
	paused  bool
	endOnce sync.Once
	done    chan error
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{done: make(chan error, 1)}
}

func (f *fakePlayback) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakePlayback) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakePlayback) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakePlayback) End() {
	f.finish(nil)
}

func (f *fakePlayback) Done() <-chan error {
	return f.done
}

// finish simulates the track ending, naturally or with a transport error.
func (f *fakePlayback) finish(err error) {
	f.endOnce.Do(func() { f.done <- err })
}

func (f *fakePlayback) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakePlayback) volumeLevel() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

type fakeConn struct {
	mu           sync.Mutex
	state        ConnectionState
	started      []string
	playbacks    []*fakePlayback
	playErrs     []error
	disconnected bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: StateConnected}
}

func (c *fakeConn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.state = StateDisconnected
	return nil
}

func (c *fakeConn) Play(track TrackRequest) (Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.playErrs) > 0 {
		err := c.playErrs[0]
		c.playErrs = c.playErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	pb := newFakePlayback()
	c.started = append(c.started, track.Title)
	c.playbacks = append(c.playbacks, pb)
	return pb, nil
}

func (c *fakeConn) startedTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.started))
	copy(out, c.started)
	return out
}

func (c *fakeConn) playback(i int) *fakePlayback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbacks[i]
}

func (c *fakeConn) setState(s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

type fakeResolver struct {
	titles map[string]string
	err    error
}

func (r *fakeResolver) Resolve(_ context.Context, rawURL string) (TrackRequest, error) {
	if r.err != nil {
		return TrackRequest{}, r.err
	}
	title, ok := r.titles[rawURL]
	if !ok {
		title = rawURL
	}
	return TrackRequest{Title: title, SourceURL: rawURL}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPlayer(t *testing.T) (*Player, *fakeConn, *fakeNotifier) {
	t.Helper()

	reg := NewRegistry(&fakeResolver{titles: map[string]string{
		"urlA": "Song A",
		"urlB": "Song B",
		"urlC": "Song C",
	}}, testLogger())

	p := reg.GetOrCreate("guild-1")
	conn := newFakeConn()
	n := &fakeNotifier{}
	p.Connect(conn, n)
	return p, conn, n
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}

func TestEnqueueStartsImmediatelyWhenIdle(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	err := p.Enqueue(context.Background(), "urlA", n)
	require.NoError(t, err)

	assert.Equal(t, []string{"Song A"}, conn.startedTitles())
	assert.True(t, p.IsPlaying())
	assert.Equal(t, 0, p.QueueLen(), "now-playing track must not stay in the queue")
	assert.True(t, n.contains(MsgNowPlaying+"Song A"))
	assert.Equal(t, DefaultVolume, conn.playback(0).volumeLevel())
}

func TestEnqueueWhilePlayingQueuesInOrder(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlC", n))

	assert.Equal(t, []string{"Song A"}, conn.startedTitles())
	assert.True(t, n.contains(MsgQueued+"Song B"))
	assert.True(t, n.contains(MsgQueued+"Song C"))

	snapshot := p.QueueSnapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, QueueItem{Position: 1, Title: "Song B"}, snapshot[0])
	assert.Equal(t, QueueItem{Position: 2, Title: "Song C"}, snapshot[1])
}

func TestCompletionAdvancesToNextTrack(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	conn.playback(0).finish(nil)

	waitFor(t, func() bool { return len(conn.startedTitles()) == 2 }, "next track should start")
	assert.Equal(t, []string{"Song A", "Song B"}, conn.startedTitles())
	assert.Equal(t, 0, p.QueueLen())
	assert.True(t, p.IsPlaying())
	waitFor(t, func() bool { return n.contains(MsgNowPlaying + "Song B") }, "advance should be announced")
}

func TestCompletionWithEmptyQueueGoesIdle(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	conn.playback(0).finish(nil)

	waitFor(t, func() bool { return !p.IsPlaying() }, "player should go idle")
	waitFor(t, func() bool { return n.contains(MsgQueueDrained) }, "idle transition should be announced")
	assert.Equal(t, []string{"Song A"}, conn.startedTitles())
}

func TestSkipBehavesLikeNaturalCompletion(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	require.NoError(t, p.Skip(n))

	waitFor(t, func() bool { return len(conn.startedTitles()) == 2 }, "skip should advance the queue")
	assert.Equal(t, []string{"Song A", "Song B"}, conn.startedTitles())
	assert.Equal(t, 0, p.QueueLen())
	assert.True(t, p.IsPlaying())
}

func TestTransportErrorTreatedAsCompletion(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	conn.playback(0).finish(errors.New("voice gateway reset"))

	waitFor(t, func() bool { return len(conn.startedTitles()) == 2 }, "transport error should advance like completion")
	assert.True(t, p.IsPlaying())
}

func TestStartFailureSkipsToNextTrack(t *testing.T) {
	p, conn, n := newTestPlayer(t)
	conn.mu.Lock()
	conn.playErrs = []error{errors.New("stream open failed")}
	conn.mu.Unlock()

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	// urlA failed to open and the queue was empty at that point, so the
	// player went idle; the second enqueue starts urlB from scratch.
	assert.True(t, n.contains(MsgQueueDrained))
	assert.Equal(t, []string{"Song B"}, conn.startedTitles())
	assert.True(t, p.IsPlaying())
}

func TestPauseAndResumeToggleStream(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))

	require.NoError(t, p.Pause(n))
	assert.True(t, conn.playback(0).isPaused())
	assert.True(t, n.contains(MsgPaused))

	require.NoError(t, p.Resume(n))
	assert.False(t, conn.playback(0).isPaused())
	assert.True(t, n.contains(MsgResumed))
}

func TestPauseWithoutPlaybackIsNoOp(t *testing.T) {
	p, _, n := newTestPlayer(t)

	err := p.Pause(n)
	assert.ErrorIs(t, err, ErrNothingPlaying)
	assert.True(t, n.contains(MsgNothingPlaying))
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 0, p.QueueLen())
}

func TestSkipWithoutPlaybackIsNoOp(t *testing.T) {
	p, _, n := newTestPlayer(t)

	err := p.Skip(n)
	assert.ErrorIs(t, err, ErrNothingPlaying)
	assert.True(t, n.contains(MsgNothingPlaying))
}

func TestEnqueueWithoutConnectionIsRefused(t *testing.T) {
	reg := NewRegistry(&fakeResolver{}, testLogger())
	p := reg.GetOrCreate("guild-1")
	n := &fakeNotifier{}

	err := p.Enqueue(context.Background(), "urlA", n)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, n.contains(MsgNotConnected))
	assert.Equal(t, 0, p.QueueLen())
	assert.False(t, p.IsPlaying())
}

func TestEnqueueWithDroppedConnectionIsRefused(t *testing.T) {
	p, conn, n := newTestPlayer(t)
	conn.setState(StateReconnecting)

	err := p.Enqueue(context.Background(), "urlA", n)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, n.contains(MsgReconnect))
	assert.Equal(t, 0, p.QueueLen())
}

func TestResolutionFailureLeavesStateUntouched(t *testing.T) {
	reg := NewRegistry(&fakeResolver{err: errors.New("video unavailable")}, testLogger())
	p := reg.GetOrCreate("guild-1")
	conn := newFakeConn()
	n := &fakeNotifier{}
	p.Connect(conn, n)

	err := p.Enqueue(context.Background(), "urlA", n)
	require.Error(t, err)
	assert.True(t, n.contains(MsgResolveFailed))
	assert.Equal(t, 0, p.QueueLen())
	assert.False(t, p.IsPlaying())
	assert.Empty(t, conn.startedTitles())
}

func TestLeaveTearsEverythingDown(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	require.NoError(t, p.Leave(n))

	assert.False(t, p.IsPlaying())
	assert.Equal(t, 0, p.QueueLen())
	assert.False(t, p.Connected())
	assert.True(t, conn.disconnected)

	// The ended track's completion must not restart playback or announce
	// an empty queue after teardown.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"Song A"}, conn.startedTitles())
	assert.False(t, n.contains(MsgQueueDrained))
}

func TestLeaveWithoutConnectionReportsError(t *testing.T) {
	reg := NewRegistry(&fakeResolver{}, testLogger())
	p := reg.GetOrCreate("guild-1")
	n := &fakeNotifier{}

	err := p.Leave(n)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, n.contains(MsgNotInVoice))
}

func TestCompletionAfterConnectionDropGoesIdle(t *testing.T) {
	p, conn, n := newTestPlayer(t)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))
	require.NoError(t, p.Enqueue(context.Background(), "urlB", n))

	conn.setState(StateDisconnected)
	conn.playback(0).finish(nil)

	waitFor(t, func() bool { return !p.IsPlaying() }, "player should go idle on dead connection")
	assert.Equal(t, []string{"Song A"}, conn.startedTitles(), "no track may start on a dead connection")
	assert.Equal(t, 1, p.QueueLen(), "pending tracks stay queued")
}

func TestOnTrackStartHookFires(t *testing.T) {
	reg := NewRegistry(&fakeResolver{titles: map[string]string{"urlA": "Song A"}}, testLogger())

	var (
		mu      sync.Mutex
		started []string
	)
	reg.OnTrackStart = func(guildID, title string) {
		mu.Lock()
		defer mu.Unlock()
		started = append(started, guildID+"/"+title)
	}

	p := reg.GetOrCreate("guild-1")
	n := &fakeNotifier{}
	p.Connect(newFakeConn(), n)

	require.NoError(t, p.Enqueue(context.Background(), "urlA", n))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(started) == 1
	}, "track start hook should fire")
	mu.Lock()
	assert.Equal(t, []string{"guild-1/Song A"}, started)
	mu.Unlock()
}
