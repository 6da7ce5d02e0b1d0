// Package workerproto is the message protocol between the pipeline
// orchestrator and the auxiliary mask workers.
//
// Every message carries a correlation id. A Mailbox matches incoming
// messages to waiters by id, so many requests can be outstanding over one
// logical channel without cross-talk.
package workerproto

import (
	"time"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// MessageType tags progress and request messages.
type MessageType string

const (
	TypeRequest MessageType = "request"
	TypeStarted MessageType = "started"
	TypeResult  MessageType = "result"
	TypeFailed  MessageType = "failed"
)

// Well-known ids for out-of-band deliveries.
const (
	IDImage       = "image"
	IDBayerLevels = "bayerlevels"
	IDBlueNoise   = "bluenoise"
	IDOriginal    = "original"
	IDGrayscale   = "grayscale"
)

// Message is the single envelope used on every channel. Fields unused by a
// given exchange stay zero.
type Message struct {
	ID    string
	Type  MessageType
	Title string

	// Image is a stage result or job input.
	Image *pixbuf.Buffer[float32]

	// Level is the Bayer level requested.
	Level int

	BayerLevels []*pixbuf.Gray
	Mask        *pixbuf.Gray
	Duration    time.Duration

	Err error
}

// Port accepts messages for a worker.
type Port interface {
	Post(msg Message) error
}

// PortFunc adapts a function to Port.
type PortFunc func(msg Message) error

func (f PortFunc) Post(msg Message) error { return f(msg) }
