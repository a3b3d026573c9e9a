// Package audio turns a PCM stream into Opus packets and feeds them to a
// Discord voice connection at the 20ms cadence the gateway expects.
package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"layeh.com/gopus"
)

const (
	sampleRate = 48000 // Discord requirement
	channels   = 2
	frameSize  = 960 // 20ms at 48kHz
	maxOpusLen = 1000 * 2
)

var ErrStreamStalled = errors.New("audio stream stalled")

// Streamer plays one track to a voice connection. It is the live control
// surface for that track: volume, pause/resume and early termination. Done
// delivers exactly one value once the pipeline has fully wound down.
type Streamer struct {
	connection *discordgo.VoiceConnection
	log        *logrus.Entry

	stopChan chan struct{}
	stopOnce sync.Once
	buffer   chan []byte
	wg       sync.WaitGroup
	done     chan error

	pauseChan  chan bool
	isPaused   bool
	pauseMutex sync.Mutex

	volMutex sync.Mutex
	volume   float64

	errMutex sync.Mutex
	err      error
}

func NewStreamer(vc *discordgo.VoiceConnection, log *logrus.Entry) *Streamer {
	return &Streamer{
		connection: vc,
		log:        log,
		stopChan:   make(chan struct{}),
		buffer:     make(chan []byte, 30),
		done:       make(chan error, 1),
		pauseChan:  make(chan bool),
		volume:     1.0,
	}
}

// Stream starts the encode and send goroutines over an s16le 48kHz stereo
// PCM stream. cleanup runs exactly once after both goroutines exit, before
// the completion value is delivered.
func (s *Streamer) Stream(pcm io.Reader, cleanup func()) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return err
	}

	if err := s.connection.Speaking(true); err != nil {
		s.log.WithError(err).Warn("failed to set speaking status")
	}

	s.wg.Add(1)
	go s.encodeAndBuffer(pcm, encoder)

	s.wg.Add(1)
	go s.streamToDiscord()

	go func() {
		s.wg.Wait()
		if cleanup != nil {
			cleanup()
		}
		s.done <- s.takeErr()
	}()

	return nil
}

// Done reports track completion: nil for natural end or skip, non-nil for
// a transport failure.
func (s *Streamer) Done() <-chan error {
	return s.done
}

// End terminates the stream immediately. Safe to call more than once.
func (s *Streamer) End() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// SetVolume scales the PCM amplitude; 1.0 is passthrough.
func (s *Streamer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	s.volMutex.Lock()
	s.volume = v
	s.volMutex.Unlock()
}

func (s *Streamer) currentVolume() float64 {
	s.volMutex.Lock()
	defer s.volMutex.Unlock()
	return s.volume
}

func (s *Streamer) encodeAndBuffer(r io.Reader, e *gopus.Encoder) {
	defer s.wg.Done()
	defer close(s.buffer)

	pcmBuffer := make([]int16, frameSize*channels)
	byteBuffer := make([]byte, len(pcmBuffer)*2)
	errorCount := 0

	for {
		select {
		case <-s.stopChan:
			return
		default:
			_, err := io.ReadFull(r, byteBuffer)
			if err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					s.log.Debug("end of audio stream reached")
					return
				}
				errorCount++
				if errorCount >= 5 {
					s.setErr(err)
					return
				}
				s.log.WithError(err).Warn("error reading PCM data")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			errorCount = 0

			for i := 0; i < len(pcmBuffer); i++ {
				pcmBuffer[i] = int16(byteBuffer[i*2]) | int16(byteBuffer[i*2+1])<<8
			}
			s.applyVolume(pcmBuffer)

			opusData, err := e.Encode(pcmBuffer, frameSize, maxOpusLen)
			if err != nil {
				s.log.WithError(err).Warn("error encoding to Opus")
				continue
			}

			select {
			case s.buffer <- opusData:
			case <-s.stopChan:
				return
			case <-time.After(500 * time.Millisecond):
				if !s.IsPaused() {
					s.log.Debug("buffer send timeout, dropping packet")
				}
			}
		}
	}
}

func (s *Streamer) applyVolume(pcm []int16) {
	vol := s.currentVolume()
	if vol == 1.0 {
		return
	}
	for i, sample := range pcm {
		scaled := float64(sample) * vol
		switch {
		case scaled > 32767:
			scaled = 32767
		case scaled < -32768:
			scaled = -32768
		}
		pcm[i] = int16(scaled)
	}
}

func (s *Streamer) streamToDiscord() {
	defer s.wg.Done()
	defer s.End()
	defer s.connection.Speaking(false)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	bufferEmptyCount := 0

	for {
		if s.IsPaused() {
			s.connection.Speaking(false)

			select {
			case <-s.pauseChan:
				s.connection.Speaking(true)
				continue
			case <-s.stopChan:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		select {
		case <-s.stopChan:
			return
		case <-s.pauseChan:
			s.setPaused(true)
			continue
		case packet, ok := <-s.buffer:
			if !ok {
				s.log.Debug("audio stream complete")
				return
			}

			<-ticker.C
			bufferEmptyCount = 0
			select {
			case s.connection.OpusSend <- packet:
			case <-s.stopChan:
				return
			case <-s.pauseChan:
				s.setPaused(true)
				continue
			default:
				s.log.Debug("voice send buffer full, skipping packet")
			}

		case <-ticker.C:
			bufferEmptyCount++
			if bufferEmptyCount > 250 {
				s.setErr(ErrStreamStalled)
				return
			}
		}
	}
}

// Pause suspends sending; the source and encoder keep their place.
func (s *Streamer) Pause() {
	s.pauseMutex.Lock()
	defer s.pauseMutex.Unlock()

	if !s.isPaused {
		s.isPaused = true
		select {
		case s.pauseChan <- true:
		default:
		}
	}
}

// Resume continues a paused stream.
func (s *Streamer) Resume() {
	s.pauseMutex.Lock()
	defer s.pauseMutex.Unlock()

	if s.isPaused {
		s.isPaused = false
		select {
		case s.pauseChan <- true:
		default:
		}
	}
}

func (s *Streamer) IsPaused() bool {
	s.pauseMutex.Lock()
	defer s.pauseMutex.Unlock()
	return s.isPaused
}

func (s *Streamer) setPaused(v bool) {
	s.pauseMutex.Lock()
	s.isPaused = v
	s.pauseMutex.Unlock()
}

func (s *Streamer) setErr(err error) {
	s.errMutex.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMutex.Unlock()
}

func (s *Streamer) takeErr() error {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.err
}
