package music

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultVolume is applied to every freshly started stream so the first
// track never blasts at full amplitude.
const DefaultVolume = 0.5

// Announcements sent back to the originating text channel.
const (
	MsgNotConnected   = "Invite me in first with the join command."
	MsgReconnect      = "I got disconnected, summon me back with join."
	MsgNowPlaying     = "Now playing: "
	MsgQueued         = "Queued: "
	MsgQueueDrained   = "Nothing left to play, queue something up."
	MsgNothingPlaying = "Nothing is playing right now."
	MsgNotInVoice     = "I'm not in a voice channel."
	MsgPaused         = "Paused."
	MsgResumed        = "Resumed."
	MsgSkipped        = "Skipping the current track."
	MsgResolveFailed  = "Couldn't read anything playable from that link."
)

// Player owns the playback state of a single guild: its voice connection,
// pending queue and the playing flag. Every mutating operation takes the
// player mutex, so rapid-fire commands for the same guild are serialized
// and cannot double-start the play cycle.
type Player struct {
	guildID  string
	resolver Resolver
	log      *logrus.Entry

	onTrackStart func(title string)

	mu       sync.Mutex
	conn     Connection
	playback Playback
	queue    trackQueue
	playing  bool
	notify   Notifier
}

// Connect hands the player a fresh voice connection, replacing and
// disconnecting any previous one.
func (p *Player) Connect(conn Connection, n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && p.conn != conn {
		if err := p.conn.Disconnect(); err != nil {
			p.log.WithError(err).Warn("failed to drop stale voice connection")
		}
	}
	p.conn = conn
	p.notify = n
}

// Enqueue resolves the source URL, appends the track to the queue and, if
// the player was idle, starts playback immediately. Resolution happens
// before the lock is taken: it is a network round trip and must not stall
// other guilds or the completion handler.
func (p *Player) Enqueue(ctx context.Context, rawURL string, n Notifier) error {
	p.mu.Lock()
	if p.conn == nil {
		p.mu.Unlock()
		n.Announce(MsgNotConnected)
		return ErrNotConnected
	}
	if p.conn.State() != StateConnected {
		p.mu.Unlock()
		n.Announce(MsgReconnect)
		return ErrNotConnected
	}
	p.mu.Unlock()

	track, err := p.resolver.Resolve(ctx, rawURL)
	if err != nil {
		p.log.WithError(err).WithField("url", rawURL).Error("track resolution failed")
		n.Announce(MsgResolveFailed)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The connection may have been torn down while resolution was in
	// flight; re-check before touching the queue.
	if p.conn == nil || p.conn.State() != StateConnected {
		n.Announce(MsgReconnect)
		return ErrNotConnected
	}

	p.notify = n
	p.queue.push(track)

	if p.playing {
		n.Announce(MsgQueued + track.Title)
		return nil
	}
	p.startHeadLocked()
	return nil
}

// startHeadLocked dequeues the head and starts it, retrying with the next
// track if the stream cannot be opened. When the queue runs dry the player
// goes idle and says so. Caller must hold p.mu with a usable connection.
func (p *Player) startHeadLocked() {
	for {
		track, ok := p.queue.pop()
		if !ok {
			p.playing = false
			p.announceLocked(MsgQueueDrained)
			return
		}

		pb, err := p.conn.Play(track)
		if err != nil {
			p.log.WithError(err).WithField("title", track.Title).Warn("could not start track, trying next")
			continue
		}

		pb.SetVolume(DefaultVolume)
		p.playback = pb
		p.playing = true
		p.announceLocked(MsgNowPlaying + track.Title)
		p.log.WithField("title", track.Title).Info("track started")

		if p.onTrackStart != nil {
			go p.onTrackStart(track.Title)
		}
		go p.watch(pb)
		return
	}
}

// watch blocks on the track's completion and advances the queue. Skips and
// transport failures funnel through here too, so "what plays next" has a
// single code path.
func (p *Player) watch(pb Playback) {
	err := <-pb.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playback != pb {
		// Superseded by leave or a reconnect; nothing to advance.
		return
	}
	if err != nil {
		p.log.WithError(err).Warn("playback ended with transport error, treating as completion")
	}
	p.playback = nil

	if p.conn == nil || p.conn.State() != StateConnected {
		p.playing = false
		return
	}
	p.startHeadLocked()
}

// Pause suspends the current stream.
func (p *Player) Pause(n Notifier) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playback == nil {
		n.Announce(MsgNothingPlaying)
		return ErrNothingPlaying
	}
	p.notify = n
	p.playback.Pause()
	n.Announce(MsgPaused)
	return nil
}

// Resume unsuspends the current stream.
func (p *Player) Resume(n Notifier) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playback == nil {
		n.Announce(MsgNothingPlaying)
		return ErrNothingPlaying
	}
	p.notify = n
	p.playback.Resume()
	n.Announce(MsgResumed)
	return nil
}

// Skip shortcuts the current track to zero length. The completion watcher
// picks the next track exactly as if it had finished on its own.
func (p *Player) Skip(n Notifier) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playback == nil {
		n.Announce(MsgNothingPlaying)
		return ErrNothingPlaying
	}
	p.notify = n
	n.Announce(MsgSkipped)
	p.playback.End()
	return nil
}

// Leave tears the whole session down: playback stopped, queue cleared,
// voice connection dropped.
func (p *Player) Leave(n Notifier) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		n.Announce(MsgNotInVoice)
		return ErrNotConnected
	}

	p.notify = n
	if p.playback != nil {
		p.playback.End()
		p.playback = nil
	}
	p.queue.clear()
	p.playing = false

	if err := p.conn.Disconnect(); err != nil {
		p.log.WithError(err).Warn("voice disconnect failed")
	}
	p.conn = nil
	return nil
}

// IsPlaying reports whether a playback cycle is active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Connected reports whether the player holds a usable voice connection.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && p.conn.State() == StateConnected
}

// QueueLen returns the number of pending tracks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.size()
}

// QueueSnapshot returns the pending tracks for display, nil when empty.
func (p *Player) QueueSnapshot() []QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.snapshot()
}

func (p *Player) announceLocked(text string) {
	if p.notify != nil {
		p.notify.Announce(text)
	}
}
