// Package processor decodes remote audio into the raw PCM layout the
// encoder expects.
package processor

import "io"

// Processor opens a remote audio stream and hands back decoded PCM.
// Close kills the underlying decode process.
type Processor interface {
	Open(streamURL string) (io.ReadCloser, error)
	Close() error
}
