// Package music implements per-guild playback state: a registry of guild
// players, their track queues and the play/pause/skip state machine. The
// Discord transport and track resolution are consumed through the narrow
// interfaces below so the package stays testable without a live gateway.
package music

import (
	"context"
	"errors"
)

// TrackRequest is a queued reference to a playable audio source.
type TrackRequest struct {
	Title     string
	SourceURL string
}

// ConnectionState is the lifecycle state of a voice connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Connection is a live voice-channel session.
type Connection interface {
	State() ConnectionState
	Disconnect() error
	Play(track TrackRequest) (Playback, error)
}

// Playback is the control surface for one in-progress audio stream.
// Done delivers exactly one value per started track, nil on natural
// completion and an error on transport failure.
type Playback interface {
	SetVolume(v float64)
	Pause()
	Resume()
	End()
	Done() <-chan error
}

// Resolver looks up the display title for a source URL.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (TrackRequest, error)
}

// Notifier sends a message to the text channel a command came from.
type Notifier interface {
	Announce(text string)
}

var (
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrNothingPlaying = errors.New("no track is currently playing")
)
