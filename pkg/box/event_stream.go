package box

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// StreamOptions configures an EventStream.
type StreamOptions struct {
	// StreamPosition to start from. Empty starts from the newest event.
	StreamPosition StreamPosition
	StreamType     string
	// ChunkSize is the page size of each fetch. Defaults to 500.
	ChunkSize int
	// FetchInterval is the minimum time between two fetches. Defaults to
	// one second.
	FetchInterval time.Duration
	// DedupSize is how many recent event IDs are remembered to drop
	// redelivered events. Defaults to 5000.
	DedupSize int
	// MaxRetries is how many consecutive failures are tolerated before
	// the stream gives up. Zero retries forever.
	MaxRetries     int
	RetryBaseDelay time.Duration

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

func (o *StreamOptions) setDefaults(c *Client) {
	if o.StreamType == "" {
		o.StreamType = StreamTypeAll
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.FetchInterval == 0 {
		o.FetchInterval = defaultFetchInterval
	}
	if o.DedupSize == 0 {
		o.DedupSize = defaultDedupSize
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = defaultStreamRetryGap
	}
	if o.Clock == nil {
		o.Clock = c.clock
	}
	if o.Logger == nil {
		o.Logger = c.log
	}
}

// EventStream delivers user events as they happen. It long polls the
// real-time server and fetches new events whenever a change is announced.
type EventStream struct {
	stream
	events *EventsManager
	opts   StreamOptions

	lastFetch time.Time
}

// Stream starts an EventStream. It runs until ctx is done, Stop is called or
// a request fails with a non-retryable error.
func (m *EventsManager) Stream(ctx context.Context, opts StreamOptions) *EventStream {
	opts.setDefaults(m.client)
	s := &EventStream{
		events: m,
		opts:   opts,
	}
	s.init(ctx, opts.StreamPosition, opts.DedupSize, opts.MaxRetries, opts.RetryBaseDelay, opts.Clock,
		opts.Logger.WithField("stream_type", opts.StreamType))
	go s.run()
	return s
}

func (s *EventStream) run() {
	defer s.finish()

	failures := 0
	for s.Position() == "" {
		pos, err := s.events.GetCurrentStreamPosition(s.ctx)
		if err != nil {
			if !s.backoff(err, &failures) {
				return
			}
			continue
		}
		if pos == "" {
			pos = StreamPositionStart
		}
		s.advance(pos)
	}

	var info *LongPollInfo
	polls := 0
	for s.ctx.Err() == nil {
		if info == nil || polls > int(info.MaxRetries) {
			s.setState(StreamIdle)
			fresh, err := s.events.GetLongPollInfo(s.ctx)
			if err != nil {
				if !s.backoff(err, &failures) {
					return
				}
				continue
			}
			info, polls, failures = fresh, 0, 0
		}

		s.setState(StreamLongPolling)
		polls++
		msg, err := s.events.longPoll(s.ctx, info, s.Position())
		if err != nil {
			// The real-time server may have moved; ask again.
			info = nil
			if !s.backoff(err, &failures) {
				return
			}
			continue
		}
		failures = 0
		if msg != "new_change" {
			s.log.WithField("message", msg).Debug("Long poll returned without changes")
			continue
		}

		if err := s.fetchEvents(); err != nil {
			if !s.backoff(err, &failures) {
				return
			}
			continue
		}
		polls = 0
	}
}

// fetchEvents reads pages from the current position until a page comes back
// short.
func (s *EventStream) fetchEvents() error {
	for {
		if err := s.throttle(); err != nil {
			return err
		}

		s.setState(StreamFetching)
		coll, err := s.events.Get(s.ctx, EventsQuery{
			StreamPosition: s.Position(),
			StreamType:     s.opts.StreamType,
			Limit:          s.opts.ChunkSize,
		})
		s.lastFetch = s.clock.Now()
		if err != nil {
			return err
		}
		s.advance(coll.NextStreamPosition)
		if coll.ChunkSize < 1 {
			return nil
		}
		if err := s.deliver(coll.Entries); err != nil {
			return err
		}
		if coll.ChunkSize < s.opts.ChunkSize {
			return nil
		}
	}
}

// throttle keeps fetches at least FetchInterval apart.
func (s *EventStream) throttle() error {
	if s.lastFetch.IsZero() {
		return nil
	}
	return sleep(s.ctx, s.clock, s.opts.FetchInterval-s.clock.Now().Sub(s.lastFetch))
}
