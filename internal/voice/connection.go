// Package voice adapts a discordgo voice connection to the playback core.
package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	audio "github.com/arvelk/jukebot/internal/audioplayer"
	"github.com/arvelk/jukebot/internal/audioplayer/processor"
	"github.com/arvelk/jukebot/internal/music"
)

// openTimeout bounds the stream-URL lookup when a track starts.
const openTimeout = 30 * time.Second

// StreamOpener resolves a source URL into a directly fetchable audio
// stream URL.
type StreamOpener interface {
	StreamURL(ctx context.Context, rawURL string) (string, error)
}

// Conn wraps a live discordgo voice connection.
type Conn struct {
	vc     *discordgo.VoiceConnection
	opener StreamOpener
	log    *logrus.Entry
}

// Dial joins the given voice channel and returns a connection the playback
// core can drive.
func Dial(s *discordgo.Session, guildID, channelID string, opener StreamOpener, log *logrus.Entry) (*Conn, error) {
	vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("joining voice channel: %w", err)
	}
	return &Conn{vc: vc, opener: opener, log: log}, nil
}

func (c *Conn) State() music.ConnectionState {
	if c.vc == nil {
		return music.StateDisconnected
	}
	c.vc.RLock()
	ready := c.vc.Ready
	c.vc.RUnlock()
	if ready {
		return music.StateConnected
	}
	return music.StateReconnecting
}

func (c *Conn) Disconnect() error {
	if c.vc == nil {
		return nil
	}
	return c.vc.Disconnect()
}

// Play opens the track's audio stream, spins up the ffmpeg decode and the
// Opus streamer, and returns the live playback handle.
func (c *Conn) Play(track music.TrackRequest) (music.Playback, error) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	streamURL, err := c.opener.StreamURL(ctx, track.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("opening audio stream: %w", err)
	}

	ffmpeg := processor.NewFfmpegProcessor()
	pcm, err := ffmpeg.Open(streamURL)
	if err != nil {
		return nil, fmt.Errorf("starting transcode: %w", err)
	}

	streamer := audio.NewStreamer(c.vc, c.log.WithField("title", track.Title))
	if err := streamer.Stream(pcm, func() { ffmpeg.Close() }); err != nil {
		ffmpeg.Close()
		return nil, fmt.Errorf("starting streamer: %w", err)
	}
	return streamer, nil
}
