// Package session orchestrates conversation turns: it validates input, commits
// user turns, sends budgeted history through a completion transport, relays
// incremental tokens to a presentation sink and commits the finished answer.
package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/transport"
)

// ErrCanceled is returned by Submit when the turn was canceled, either through
// Cancel or through the context passed to Submit.
var ErrCanceled = errors.New("turn canceled")

// Completer sends one completion request. *transport.Client implements it.
type Completer interface {
	Send(ctx context.Context, req llm.ChatRequest, opts transport.Options) (string, error)
}

var _ Completer = (*transport.Client)(nil)

// Persister stores the conversation between sessions. Failures are logged and
// never fail a turn.
type Persister interface {
	SaveConversation(ctx context.Context, turns []history.Turn) error
}

// Options configures how a Session builds and sends requests.
type Options struct {
	Model       string
	Temperature float64

	// Budget is the maximum estimated size of the history sent per request.
	// Zero or negative means unbounded.
	Budget int

	Stream     bool
	Timeout    time.Duration
	MaxRetries int

	// EvictCommitted keeps the conversation itself within Budget by dropping
	// its oldest non-system turns whenever it changes. The most recent turn is
	// always kept, so the cap is soft like the request budget.
	EvictCommitted bool

	Persister Persister
}

// Session is the Session Controller. It owns the StreamState of the in-flight
// turn and allows at most one turn in flight.
type Session struct {
	id     string
	hist   *history.History
	client Completer
	sink   Sink
	store  Persister
	logger *zap.Logger

	// emitMu orders sink callbacks across Submit, Cancel and token delivery.
	// It is always taken before mu.
	emitMu sync.Mutex

	mu     sync.Mutex
	opts   Options
	state  State
	gen    uint64
	cancel context.CancelFunc
	stream strings.Builder
}

type change struct {
	from, to State
}

// New creates an idle Session over hist. With EvictCommitted set, hist is
// trimmed to the budget right away.
func New(hist *history.History, client Completer, sink Sink, opts Options, logger *zap.Logger) *Session {
	if sink == nil {
		sink = SinkFuncs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	s := &Session{
		id:     id,
		hist:   hist,
		client: client,
		sink:   sink,
		store:  opts.Persister,
		opts:   opts,
		logger: logger.With(zap.String("session_id", id)),
	}
	s.evict(opts)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// History returns the conversation owned by the session.
func (s *Session) History() *history.History {
	return s.hist
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Options returns the current options.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// SetModel changes the model used from the next turn on.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Model = model
}

// SetTemperature changes the temperature used from the next turn on.
func (s *Session) SetTemperature(temperature float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Temperature = temperature
}

// SetPersona replaces the system turn and persists the conversation.
func (s *Session) SetPersona(ctx context.Context, system string) {
	s.hist.SetSystem(system)
	s.evict(s.Options())
	s.persist(ctx)
}

// Reset clears the conversation down to its system turn. It fails with ErrBusy
// while a turn is in flight.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.hist.Clear()
	s.mu.Unlock()

	s.logger.Info("conversation cleared")
	s.persist(ctx)
	return nil
}

// Submit runs one turn for text and blocks until it is committed, fails or is
// canceled. Whitespace-only input is rejected with a *ValidationError and a
// second Submit while a turn is in flight is rejected with ErrBusy; neither
// changes any state. Terminal errors are reported to the sink exactly once and
// also returned.
func (s *Session) Submit(ctx context.Context, text string) (history.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return history.Turn{}, &ValidationError{Reason: "empty input"}
	}

	s.emitMu.Lock()
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		s.emitMu.Unlock()
		s.logger.Debug("submit rejected", zap.Stringer("state", state))
		return history.Turn{}, ErrBusy
	}

	changes := []change{s.fire(evSubmit)}
	user := history.NewTurn(history.RoleUser, text)
	s.hist.Append(user)

	opts := s.opts
	s.evict(opts)
	req := s.buildRequest(opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.stream.Reset()
	s.mu.Unlock()

	s.emit(changes...)
	s.sink.OnTurn(user)
	s.emitMu.Unlock()
	s.persist(ctx)

	s.logger.Debug("sending turn",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)

	answer, err := s.client.Send(runCtx, req, transport.Options{
		OnToken: func(token string) {
			s.onToken(gen, token)
		},
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})

	s.emitMu.Lock()
	s.mu.Lock()
	if gen != s.gen || !s.state.InFlight() {
		s.mu.Unlock()
		s.emitMu.Unlock()
		s.logger.Debug("turn canceled")
		return history.Turn{}, ErrCanceled
	}
	s.cancel = nil

	if errors.Is(err, transport.ErrCanceled) {
		s.stream.Reset()
		changes = []change{s.fire(evCancel)}
		s.mu.Unlock()
		s.emit(changes...)
		s.emitMu.Unlock()
		s.logger.Debug("turn canceled by caller context")
		return history.Turn{}, ErrCanceled
	}

	if err != nil {
		s.stream.Reset()
		changes = []change{s.fire(evFail), s.fire(evReset)}
		s.mu.Unlock()

		s.logger.Warn("turn failed", zap.Error(err))
		s.emit(changes[0])
		s.sink.OnError(err)
		s.emit(changes[1])
		s.emitMu.Unlock()
		return history.Turn{}, err
	}

	content := s.stream.String()
	if content == "" {
		content = answer
	}
	s.stream.Reset()

	assistant := history.NewTurn(history.RoleAssistant, content)
	assistant.Metadata = map[string]string{"model": opts.Model}
	s.hist.Append(assistant)
	s.evict(opts)
	changes = []change{s.fire(evComplete), s.fire(evReset)}
	s.mu.Unlock()

	s.logger.Debug("turn committed", zap.Int("answer_chars", len(content)))
	s.emit(changes[0])
	s.sink.OnTurn(assistant)
	s.emit(changes[1])
	s.emitMu.Unlock()
	s.persist(ctx)

	return assistant, nil
}

// Cancel aborts the in-flight turn, discards its partial answer and returns the
// session to Idle without committing anything. It reports false when no turn
// is in flight.
func (s *Session) Cancel() bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if !s.state.InFlight() {
		s.mu.Unlock()
		return false
	}
	c := s.fire(evCancel)
	s.gen++
	s.stream.Reset()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("turn canceled")
	s.emit(c)
	return true
}

// onToken holds emitMu until the sink has the token, so a concurrent Cancel
// reports Idle only after it.
func (s *Session) onToken(gen uint64, token string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.state.InFlight() {
		s.mu.Unlock()
		return
	}
	var changes []change
	if s.state == Sending {
		changes = append(changes, s.fire(evToken))
	}
	s.stream.WriteString(token)
	s.mu.Unlock()

	s.emit(changes...)
	s.sink.OnToken(token)
}

// buildRequest assembles the RequestPayload. The caller must hold the lock.
func (s *Session) buildRequest(opts Options) llm.ChatRequest {
	budget := opts.Budget
	if budget <= 0 {
		budget = math.MaxInt
	}
	return llm.ChatRequest{
		Model:       opts.Model,
		Temperature: llm.Float64(opts.Temperature),
		Messages:    history.Messages(s.hist.Budgeted(budget)),
		Stream:      opts.Stream,
	}
}

// evict trims the conversation to the budget when EvictCommitted is set.
func (s *Session) evict(opts Options) {
	if opts.EvictCommitted && opts.Budget > 0 {
		s.hist.Evict(opts.Budget)
	}
}

// fire applies e to the current state. The caller must hold the lock.
func (s *Session) fire(e event) change {
	from := s.state
	to, ok := next(from, e)
	if !ok {
		s.logger.Error("invalid state transition",
			zap.Stringer("state", from),
			zap.Stringer("event", e),
		)
	}
	s.state = to
	return change{from: from, to: to}
}

func (s *Session) emit(changes ...change) {
	for _, c := range changes {
		if c.from != c.to {
			s.sink.OnState(c.from, c.to)
		}
	}
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveConversation(context.WithoutCancel(ctx), s.hist.Turns()); err != nil {
		s.logger.Warn("failed to persist conversation", zap.Error(err))
	}
}
