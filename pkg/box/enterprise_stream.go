package box

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// DefaultPollingInterval is a sensible EnterpriseStreamOptions.PollingInterval.
const DefaultPollingInterval = 60 * time.Second

// EnterpriseStreamOptions configures an EnterpriseEventStream.
type EnterpriseStreamOptions struct {
	// StreamPosition to resume from. Empty means unset; StreamPositionStart
	// ("0") replays all available history. When neither StreamPosition
	// nor CreatedAfter is set the stream starts now.
	StreamPosition StreamPosition
	CreatedAfter   time.Time
	// CreatedBefore bounds the stream; it ends at the first empty page.
	CreatedBefore time.Time
	// EventTypes filters events server side.
	EventTypes []string
	StreamType string
	ChunkSize  int
	// PollingInterval is the pause between polls once caught up. Zero
	// reads what is available and stops.
	PollingInterval time.Duration

	DedupSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

func (o *EnterpriseStreamOptions) setDefaults(c *Client) {
	if o.StreamType == "" {
		o.StreamType = StreamTypeAdminLogs
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = defaultChunkSize
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

// EnterpriseEventStream delivers enterprise (admin log) events by polling at
// a fixed interval.
type EnterpriseEventStream struct {
	stream
	events *EventsManager
	opts   EnterpriseStreamOptions
}

// EnterpriseStream starts an EnterpriseEventStream.
func (m *EventsManager) EnterpriseStream(ctx context.Context, opts EnterpriseStreamOptions) *EnterpriseEventStream {
	opts.setDefaults(m.client)
	s := &EnterpriseEventStream{
		events: m,
		opts:   opts,
	}
	s.init(ctx, opts.StreamPosition, opts.DedupSize, opts.MaxRetries, opts.RetryBaseDelay, opts.Clock,
		opts.Logger.WithField("stream_type", opts.StreamType))
	go s.run()
	return s
}

func (s *EnterpriseEventStream) run() {
	defer s.finish()

	q := EnterpriseEventsQuery{
		StreamType:    s.opts.StreamType,
		Limit:         s.opts.ChunkSize,
		CreatedAfter:  s.opts.CreatedAfter,
		CreatedBefore: s.opts.CreatedBefore,
		EventTypes:    s.opts.EventTypes,
	}
	if s.Position() == "" && q.CreatedAfter.IsZero() {
		q.CreatedAfter = s.clock.Now()
	}

	failures := 0
	for s.ctx.Err() == nil {
		s.setState(StreamFetching)
		q.StreamPosition = s.Position()
		coll, err := s.events.GetEnterpriseEvents(s.ctx, q)
		if err != nil {
			if !s.backoff(err, &failures) {
				return
			}
			continue
		}
		failures = 0

		s.advance(coll.NextStreamPosition)
		if err := s.deliver(coll.Entries); err != nil {
			return
		}

		if coll.ChunkSize >= s.opts.ChunkSize {
			// More may be waiting; fetch again right away.
			continue
		}
		if s.opts.PollingInterval == 0 {
			return
		}
		if !q.CreatedBefore.IsZero() && coll.ChunkSize == 0 {
			return
		}

		s.setState(StreamIdle)
		if err := sleep(s.ctx, s.clock, s.opts.PollingInterval); err != nil {
			return
		}
	}
}
