// Package resolver looks up track metadata and audio stream URLs on
// YouTube without shelling out to external tools.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	"github.com/sirupsen/logrus"

	"github.com/arvelk/jukebot/internal/music"
)

var ErrNoAudioFormat = errors.New("no audio formats found for video")

type YouTube struct {
	client *youtube.Client
	log    *logrus.Entry
}

func NewYouTube(log *logrus.Logger) *YouTube {
	return &YouTube{
		client: &youtube.Client{
			HTTPClient: &http.Client{
				Timeout: 15 * time.Second,
			},
		},
		log: log.WithField("component", "resolver"),
	}
}

// Resolve fetches the video's display title. Called once at enqueue time;
// a failure here means the track never enters the queue.
func (y *YouTube) Resolve(ctx context.Context, rawURL string) (music.TrackRequest, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return music.TrackRequest{}, fmt.Errorf("fetching video info: %w", err)
	}
	return music.TrackRequest{
		Title:     video.Title,
		SourceURL: rawURL,
	}, nil
}

// StreamURL re-opens the video at play time and picks an audio format.
// Looked up fresh per start so an old queue entry still gets a valid,
// unexpired media URL.
func (y *YouTube) StreamURL(ctx context.Context, rawURL string) (string, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetching video info: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", ErrNoAudioFormat
	}

	link, err := y.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return "", fmt.Errorf("resolving stream URL: %w", err)
	}

	y.log.WithField("title", video.Title).Debug("resolved audio stream URL")
	return link, nil
}
