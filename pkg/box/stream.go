package box

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// StreamState is what a stream's polling loop is currently doing.
type StreamState int32

const (
	StreamIdle StreamState = iota
	StreamLongPolling
	StreamFetching
	StreamRetryWait
	StreamStopped
)

var streamStateNames = [...]string{"idle", "long_polling", "fetching", "retry_wait", "stopped"}

func (s StreamState) String() string {
	if int(s) < len(streamStateNames) {
		return streamStateNames[s]
	}
	return "unknown"
}

const (
	defaultChunkSize      = 500
	defaultDedupSize      = 5000
	defaultFetchInterval  = time.Second
	defaultStreamRetryGap = time.Second
	maxStreamRetryDelay   = 5 * time.Minute
)

// stream is the part shared by EventStream and EnterpriseEventStream: the
// output channel, stream position, deduplication and lifecycle. Only the
// polling goroutine writes to it, apart from Stop.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	out    chan Event
	done   chan struct{}

	state atomic.Int32

	mu  sync.Mutex
	pos StreamPosition
	err error

	seen  *recentSet
	clock clock.Clock
	log   logrus.FieldLogger

	maxRetries int
	retryBase  time.Duration
}

func (s *stream) init(ctx context.Context, pos StreamPosition, dedupSize, maxRetries int, retryBase time.Duration, clk clock.Clock, log logrus.FieldLogger) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.out = make(chan Event)
	s.done = make(chan struct{})
	s.pos = pos
	s.seen = newRecentSet(dedupSize)
	s.clock = clk
	s.log = log
	s.maxRetries = maxRetries
	s.retryBase = retryBase
}

// Events returns the channel events are delivered on. It is closed when the
// stream stops, after which Err reports why.
func (s *stream) Events() <-chan Event {
	return s.out
}

// Err returns the error that stopped the stream, or nil if it was stopped by
// Stop, by its context, or ran to completion.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop ends the stream and waits for its goroutine to exit. Results of a
// request in flight are discarded. Stop may be called more than once.
func (s *stream) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the stream has stopped.
func (s *stream) Done() <-chan struct{} {
	return s.done
}

func (s *stream) State() StreamState {
	return StreamState(s.state.Load())
}

// Position is the stream position the next fetch starts from.
func (s *stream) Position() StreamPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *stream) setState(state StreamState) {
	s.state.Store(int32(state))
}

// advance moves the position forward. It never moves backward.
func (s *stream) advance(next StreamPosition) {
	if next == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.before(s.pos) {
		s.log.WithFields(logrus.Fields{
			"stream_position": s.pos,
			"next_position":   next,
		}).Warn("Ignoring stream position older than the current one")
		return
	}
	s.pos = next
}

// deliver sends events that have not been seen recently, in order.
func (s *stream) deliver(events []Event) error {
	for _, ev := range events {
		if ev.ID != "" {
			if s.seen.Contains(ev.ID) {
				s.log.WithField("event_id", ev.ID).Debug("Dropping duplicate event")
				continue
			}
			s.seen.Add(ev.ID)
		}
		if err := s.ctx.Err(); err != nil {
			return err
		}
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	return nil
}

// backoff handles a failed request. It waits before the next attempt and
// returns true, or records a fatal error and returns false.
func (s *stream) backoff(err error, failures *int) bool {
	if s.ctx.Err() != nil {
		return false
	}
	*failures++
	if isFatal(err) || (s.maxRetries > 0 && *failures > s.maxRetries) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.log.WithField("err", err).Error("Event stream stopped")
		return false
	}

	delay := streamRetryDelay(*failures, s.retryBase)
	s.log.WithFields(logrus.Fields{
		"err":     err,
		"attempt": *failures,
		"delay":   delay,
	}).Warn("Event stream request failed, retrying")
	s.setState(StreamRetryWait)
	return sleep(s.ctx, s.clock, delay) == nil
}

// streamRetryDelay is RetryDelay capped at maxStreamRetryDelay.
func streamRetryDelay(attempt int, base time.Duration) time.Duration {
	if d := RetryDelay(attempt, base); d < maxStreamRetryDelay {
		return d
	}
	return maxStreamRetryDelay
}

func (s *stream) finish() {
	s.setState(StreamStopped)
	s.cancel()
	close(s.out)
	close(s.done)
}
