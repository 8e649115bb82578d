// Package ingest produces raw audio packets for the encoding stage.
package ingest

import (
	"context"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// State constants for ingest source lifecycle.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateError    = "error"
)

// Pusher is the queue packets are delivered to. It takes over the caller's
// reference.
type Pusher interface {
	Push(p *media.Packet) bool
}

// Source is the interface for any audio ingest source (URL, generator, etc.).
type Source interface {
	// Start begins ingesting audio. Blocks until ctx is cancelled,
	// the source ends, or an error occurs.
	Start(ctx context.Context) error
	// Stop terminates the ingest. Idempotent.
	Stop()
	// Status returns a snapshot of current ingest state.
	Status() Status
}

// Status describes the current state of an ingest source.
type Status struct {
	State         string `json:"state"`
	Source        string `json:"source"`
	Format        string `json:"format"`
	PacketsPushed int64  `json:"packetsPushed"`
	BytesRead     int64  `json:"bytesRead"`
	LastError     string `json:"lastError,omitempty"`
}

// packetBytes returns the size of one frameMs packet in format f.
func packetBytes(f media.Format, frameMs int) int {
	return f.SampleRate * frameMs / 1000 * f.FrameBytes()
}
