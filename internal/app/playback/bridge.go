package playback

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Completion reports the end of one backend stream.
// Err is nil when the stream finished normally.
type Completion struct {
	GuildID string
	Handle  Handle
	Err     error
}

// Bridge hands completions from backend goroutines to the driver.
// Posting is the only thing a backend may do; a single consumer routes each
// completion into the owning guild's mailbox.
type Bridge struct {
	ch       chan Completion
	done     chan struct{}
	doneOnce sync.Once
}

// NewBridge creates a bridge with the given buffer.
func NewBridge(buffer int) *Bridge {
	if buffer < 1 {
		buffer = 1
	}
	return &Bridge{
		ch:   make(chan Completion, buffer),
		done: make(chan struct{}),
	}
}

// Post delivers a completion. It blocks only while the buffer is full,
// and returns immediately once the consumer has shut down.
func (b *Bridge) Post(c Completion) {
	select {
	case b.ch <- c:
	case <-b.done:
		zlog.Debug().Msgf("bridge: dropped completion after shutdown: guild=%s handle=%d", c.GuildID, c.Handle)
	}
}

// Run consumes completions one at a time until ctx is done.
func (b *Bridge) Run(ctx context.Context, route func(Completion)) {
	defer b.doneOnce.Do(func() { close(b.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-b.ch:
			route(c)
		}
	}
}
