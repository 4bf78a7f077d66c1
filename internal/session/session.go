// Package session runs one streaming exchange with the chat hub.
//
// A Session is opened with Open, which resolves the conversation signature,
// dials the hub, performs the handshake and sends the chat request. The
// caller then pulls events with Next, Step or Events. Each receive step reads
// one frame, decodes its records and dispatches them in wire order. Image
// generation requests run in the background and their results are delivered
// after the stream ends, once every job has resolved.
//
// A Session is driven by a single goroutine. Stop, State and Close may be
// called from any goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/dispatch"
	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/imagegen"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/protocol"
	"github.com/GriffinCanCode/copilot/internal/shared/id"
	"github.com/GriffinCanCode/copilot/internal/stopsignal"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrDialFailed      = errors.New("hub dial failed")
	ErrHandshakeFailed = errors.New("hub handshake failed")
)

// SignatureSource provides the encrypted token that opens the hub.
type SignatureSource interface {
	Encrypted(ctx context.Context, c *conversation.Conversation) (string, error)
}

// Options configures a Session.
type Options struct {
	HubURL string
	// Header is sent with the upgrade request (cookie and referer).
	Header           http.Header
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for each frame; zero waits until ctx ends.
	ReadTimeout      time.Duration
	StopInvocationID string
	// Stop is an optional caller-held token; Session.Stop works either way.
	Stop   *stopsignal.Token
	Dialer Dialer
	// Images generates requested images; nil drops generation requests.
	Images      imagegen.Generator
	ImageConfig imagegen.PoolConfig
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Session is one streaming exchange.
type Session struct {
	id      id.SessionID
	conv    *conversation.Conversation
	conn    Conn
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics

	dispatcher *dispatch.Dispatcher
	pool       *imagegen.Pool
	cancelJobs context.CancelFunc

	external *stopsignal.Token
	own      *stopsignal.Token
	trigger  stopsignal.Trigger
	stopSent bool

	state   atomic.Int32
	pending []events.Event
	err     error

	closeOnce sync.Once
}

// Open connects to the hub for conv and sends request. Nothing is streamed
// if Open fails; the transport is closed before returning the error.
func Open(ctx context.Context, signer SignatureSource, conv *conversation.Conversation, request protocol.ChatRequest, opts Options) (*Session, error) {
	if opts.StopInvocationID == "" {
		opts.StopInvocationID = "3"
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer(opts.HandshakeTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sid := id.NewSessionID()
	own, trigger := stopsignal.New()
	s := &Session{
		id:       sid,
		conv:     conv,
		opts:     opts,
		metrics:  opts.Metrics,
		external: opts.Stop,
		own:      own,
		trigger:  trigger,
		logger: logger.With(
			zap.String("component", "session"),
			zap.String("session_id", string(sid)),
			zap.String("conversation_id", conv.ID),
		),
	}
	s.setState(Connecting)

	token, err := signer.Encrypted(ctx, conv)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}
	conn, err := opts.Dialer.Dial(dialCtx, HubURL(opts.HubURL, token), opts.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	s.conn = conn

	s.setState(Handshaking)
	if err := s.handshake(dialCtx, request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelJobs = cancelJobs
	var spawner dispatch.Spawner
	if opts.Images != nil {
		s.pool = imagegen.NewPool(jobCtx, opts.Images, opts.ImageConfig, s.logger, s.metrics)
		spawner = s.pool
	}
	s.dispatcher = dispatch.New(spawner, s.logger)

	s.setState(Streaming)
	s.metrics.SessionOpened()
	s.logger.Debug("session streaming")
	return s, nil
}

// handshake sends the protocol selection, discards the acknowledgment and
// sends the heartbeat and the request.
func (s *Session) handshake(ctx context.Context, request protocol.ChatRequest) error {
	if err := s.send(protocol.NewHandshake(), "handshake"); err != nil {
		return err
	}
	if _, err := s.read(ctx, s.opts.HandshakeTimeout); err != nil {
		return fmt.Errorf("read acknowledgment: %w", err)
	}
	if err := s.send(protocol.NewHeartbeat(), "heartbeat"); err != nil {
		return err
	}
	return s.send(request, "request")
}

// ID returns the local session id used in logs.
func (s *Session) ID() id.SessionID {
	return s.id
}

// Conversation returns the conversation the session streams.
func (s *Session) Conversation() *conversation.Conversation {
	return s.conv
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Stop asks the hub to stop generating. It is safe to call at any time and
// more than once; a stop request is sent at most once.
func (s *Session) Stop() {
	s.trigger()
}

// StopFunc returns Stop as a trigger for callers that only need the function.
func (s *Session) StopFunc() stopsignal.Trigger {
	return s.trigger
}

// Err returns the transport error that ended the stream, if it did not end
// normally. It is meaningful once Next has returned io.EOF.
func (s *Session) Err() error {
	return s.err
}

// Step performs one receive iteration and returns the events it produced,
// possibly none. After the stream ends, the next Step joins the image jobs
// and returns their events. Once the session is closed Step returns io.EOF.
func (s *Session) Step(ctx context.Context) ([]events.Event, error) {
	switch s.State() {
	case Closed:
		return nil, io.EOF
	case Draining:
		return s.drain(ctx), nil
	}

	s.sendStopIfRequested()

	data, err := s.read(ctx, s.opts.ReadTimeout)
	if err != nil {
		s.endStream(ctx, err)
		return nil, nil
	}

	var out []events.Event
	for _, rec := range protocol.Decode(data) {
		s.metrics.RecordFrame("in", dispatch.TypeLabel(rec))
		res := s.dispatcher.Dispatch(rec)
		out = append(out, res.Events...)

		if res.Action == dispatch.Heartbeat {
			_ = s.send(protocol.NewHeartbeat(), "heartbeat")
		}
		if res.Action == dispatch.Terminate {
			s.setState(Draining)
			break
		}
	}
	s.record(out)
	return out, nil
}

// Next returns the next event. It returns io.EOF once every event, including
// the deferred image results, has been delivered.
func (s *Session) Next(ctx context.Context) (events.Event, error) {
	for len(s.pending) == 0 {
		evs, err := s.Step(ctx)
		if err != nil {
			return events.Event{}, err
		}
		s.pending = evs
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// Events returns the session as a sequence. A transport error that ended the
// stream is yielded last with a zero event. Breaking out of the loop closes
// the session.
func (s *Session) Events(ctx context.Context) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				if s.err != nil {
					yield(events.Event{}, s.err)
				}
				return
			}
			if !yield(ev, nil) {
				s.Close()
				return
			}
		}
	}
}

// Close releases the transport and abandons outstanding image jobs. It is
// idempotent and does not need to be called after Next returned io.EOF.
func (s *Session) Close() error {
	s.finish("abandoned")
	return nil
}

func (s *Session) endStream(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.err = ctx.Err()
	case isClosed(err):
		s.logger.Debug("hub closed the stream", zap.Error(err))
	default:
		s.err = fmt.Errorf("hub read failed: %w", err)
		s.logger.Warn("hub read failed", zap.Error(err))
	}
	s.setState(Draining)
}

// drain switches the jobs to the drain budget, waits for them and closes
// the session. Cancelling ctx abandons the remaining jobs.
func (s *Session) drain(ctx context.Context) []events.Event {
	var out []events.Event
	if s.pool != nil {
		stop := context.AfterFunc(ctx, s.cancelJobs)
		out = s.pool.JoinAll()
		stop()
	}
	s.record(out)
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	outcome := "completed"
	switch {
	case s.err != nil:
		outcome = "error"
	case s.stopSent:
		outcome = "stopped"
	}
	s.finish(outcome)
	return out
}

func (s *Session) finish(outcome string) {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		if s.cancelJobs != nil {
			s.cancelJobs()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.metrics.SessionClosed(outcome)
		s.logger.Debug("session closed", zap.String("outcome", outcome))
	})
}

func (s *Session) sendStopIfRequested() {
	if s.stopSent {
		return
	}
	if !s.own.IsSet() && (s.external == nil || !s.external.IsSet()) {
		return
	}
	s.stopSent = true
	if err := s.send(protocol.NewStopRequest(s.opts.StopInvocationID), "stop"); err != nil {
		s.logger.Debug("stop request not sent", zap.Error(err))
	}
}

// read waits for one frame. Cancelling ctx interrupts the read.
func (s *Session) read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	_ = s.conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (s *Session) send(v interface{}, label string) error {
	frame, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", label, err)
	}
	s.metrics.RecordFrame("out", label)
	return nil
}

func (s *Session) record(evs []events.Event) {
	for _, ev := range evs {
		s.metrics.RecordEvent(ev.Kind.String())
	}
}
