package processor

import (
	"fmt"
	"io"
	"os/exec"
)

// FfmpegProcessor shells out to ffmpeg to decode an audio stream URL into
// s16le 48kHz stereo PCM on stdout. The reconnect flags keep long tracks
// alive across transient CDN drops.
type FfmpegProcessor struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func NewFfmpegProcessor() *FfmpegProcessor {
	return &FfmpegProcessor{}
}

func (p *FfmpegProcessor) Open(streamURL string) (io.ReadCloser, error) {
	p.cmd = exec.Command("ffmpeg",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-f", "s16le", // Format: signed 16-bit little-endian
		"-ar", "48000", // Sample rate: 48kHz (Discord requirement)
		"-ac", "2", // Channels: stereo
		"-vn", // Drop any video stream
		"-loglevel", "warning",
		"pipe:1")

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	p.stdout = stdout

	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	return stdout, nil
}

func (p *FfmpegProcessor) Close() error {
	if p.cmd != nil && p.cmd.Process != nil {
		err := p.cmd.Process.Kill()
		// Reap the child so it does not linger as a zombie.
		go p.cmd.Wait()
		return err
	}
	return nil
}
