package tollproto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/metrics"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// journalTimeout bounds a journal write so a stalled database cannot hold up the next line.
const journalTimeout = 2 * time.Second

// ErrUnhandledTag is returned by Route when no handler is registered for an event's tag.
var ErrUnhandledTag = errors.New("tollproto: no handler for tag")

// HandlerFunc applies one decoded event.
type HandlerFunc func(ctx context.Context, ev protocol.Event) error

// Router dispatches events to handlers by tag.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to tag.
func (r *Router) Register(tag string, handler HandlerFunc) {
	r.handlers[tag] = handler
}

// Route executes handler for event.
func (r *Router) Route(ctx context.Context, ev protocol.Event) error {
	handler, ok := r.handlers[ev.Tag()]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnhandledTag, ev.Tag())
	}
	return handler(ctx, ev)
}

// LineJournal records raw lines as they arrive.
type LineJournal interface {
	Save(ctx context.Context, tag, raw string, malformed bool) error
}

// Processor ties together decoding, journaling and routing for one line at a time.
type Processor struct {
	decoder *Decoder
	router  *Router
	journal LineJournal
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewProcessor builds Processor. journal and m may be nil.
func NewProcessor(decoder *Decoder, router *Router, journal LineJournal, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		decoder: decoder,
		router:  router,
		journal: journal,
		metrics: m,
		logger:  logger,
	}
}

// Process decodes and applies one line. Malformed lines are logged and discarded without
// touching state. The returned error is the handler's; the line is finished either way.
func (p *Processor) Process(ctx context.Context, line string) (protocol.Event, error) {
	ev := p.decoder.Decode(line)
	p.metrics.LineReceived(ev.Tag())

	bad, isMalformed := ev.(protocol.Malformed)

	if p.journal != nil {
		saveCtx, cancel := context.WithTimeout(ctx, journalTimeout)
		err := p.journal.Save(saveCtx, ev.Tag(), strings.ToValidUTF8(line, "\uFFFD"), isMalformed)
		cancel()
		if err != nil {
			p.metrics.SinkFailed(metrics.SinkJournal)
			p.logger.Warn("journal line failed", zap.Error(err))
		}
	}

	if isMalformed {
		p.logger.Warn("discarding malformed line",
			zap.String("raw_line", bad.Raw),
			zap.String("field", bad.Field),
			zap.String("reason", bad.Reason),
		)
		return ev, nil
	}

	if c, ok := ev.(protocol.Capture); ok && len(c.Extra) > 0 {
		p.logger.Warn("capture line carries extra fields", zap.Strings("extra", c.Extra))
	}

	if err := p.router.Route(ctx, ev); err != nil {
		p.metrics.HandlerFailed(ev.Tag())
		p.logger.Warn("event handler failed", zap.String("tag", ev.Tag()), zap.Error(err))
		return ev, err
	}
	return ev, nil
}
