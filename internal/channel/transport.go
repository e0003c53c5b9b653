package channel

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// ErrMalformedMessage marks an inbound frame that could not be decoded. The
// connection stays usable.
var ErrMalformedMessage = errors.New("malformed channel message")

// Conn is one open duplex channel.
type Conn interface {
	ReadMessage() (types.Message, error)
	WriteMessage(msg types.Message) error
	Ping() error
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallClock struct{}

// WallClock schedules callbacks on real time.
func WallClock() Scheduler {
	return wallClock{}
}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
