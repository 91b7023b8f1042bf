// Package turn runs one conversational exchange: validate the request,
// assemble context from history, generate the reply and persist both
// sides.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/generator"
	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/summarizer"
	"github.com/meditreat/meditreat/pkg/message"
)

// Defaults applied to requests that omit them.
const (
	DefaultUsername    = "User"
	DefaultLLM         = "openai"
	DefaultTemperature = 0.2
)

// Store is the history the orchestrator reads and writes.
type Store interface {
	Append(ctx context.Context, msg message.Message) (message.Message, error)
	Retrieve(ctx context.Context, userID, chatID, query string, limit int) []message.Message
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, history string) (string, error)
}

// Generator produces replies.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) generator.Reply
	GenerateStream(ctx context.Context, req generator.Request) <-chan string
	ModelName(llm string) string
}

// Publisher receives completed-turn events.
type Publisher interface {
	PublishTurn(ctx context.Context, ev events.TurnCompleted) error
}

// Metrics receives turn outcomes.
type Metrics interface {
	TurnFinished(mode, outcome string, d time.Duration)
	PersistFailed()
}

// Sink delivers streamed text to a client.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, text string) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

// Request is one inbound user message.
type Request struct {
	UserID      string
	ChatID      string
	Message     string
	Username    string
	LLM         string
	Temperature *float64
}

// Result describes a finished turn.
type Result struct {
	UserID    string
	ChatID    string
	Reply     string
	Sources   []provider.Source
	Model     string
	Usage     *provider.TokenUsage
	Degraded  bool
	Persisted bool
	Timestamp time.Time
	Trace     []State
}

// Config holds turn policy.
type Config struct {
	HistoryLimit       int
	SummaryPolicy      SummaryPolicy
	DefaultLLM         string
	DefaultTemperature *float64
}

// Deps are the collaborators of an Orchestrator. Store, Summarizer and
// Generator are required.
type Deps struct {
	Store      Store
	Summarizer Summarizer
	Generator  Generator
	Publisher  Publisher
	Metrics    Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Orchestrator runs turns. It is safe for concurrent use; turns of one
// connection are expected to be run sequentially by the caller.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if !cfg.SummaryPolicy.Valid() {
		cfg.SummaryPolicy = SummaryDegrade
	}
	if cfg.DefaultLLM == "" {
		cfg.DefaultLLM = DefaultLLM
	}
	if cfg.DefaultTemperature == nil {
		t := DefaultTemperature
		cfg.DefaultTemperature = &t
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = deps.Logger.With("component", "turn")
	return &Orchestrator{cfg: cfg, deps: deps}
}

// turnRun tracks one turn through the state machine.
type turnRun struct {
	o       *Orchestrator
	mode    Mode
	req     Request
	span    trace.Span
	started time.Time
	trace   []State
	logger  *slog.Logger
}

func (o *Orchestrator) begin(ctx context.Context, mode Mode, req Request) (context.Context, *turnRun) {
	ctx, span := o.deps.Tracer.Start(ctx, "turn", trace.WithAttributes(attribute.String("turn.mode", string(mode))))
	r := &turnRun{
		o:       o,
		mode:    mode,
		req:     req,
		span:    span,
		started: o.deps.Now(),
		logger:  o.deps.Logger.With("mode", string(mode)),
	}
	r.enter(Idle)
	return ctx, r
}

func (r *turnRun) enter(s State) {
	r.trace = append(r.trace, s)
	r.span.AddEvent(s.String())
}

func (r *turnRun) finish(outcome string, err error) {
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, outcome)
	}
	r.span.End()
	if m := r.o.deps.Metrics; m != nil {
		m.TurnFinished(string(r.mode), outcome, r.o.deps.Now().Sub(r.started))
	}
}

// prepare validates the request, applies defaults and builds the context
// summary. The returned request has canonical identifiers.
func (r *turnRun) prepare(ctx context.Context) (generator.Request, error) {
	o := r.o
	r.enter(Validating)
	if strings.TrimSpace(r.req.UserID) == "" || strings.TrimSpace(r.req.Message) == "" {
		return generator.Request{}, ErrValidation
	}

	// Canonicalize once so both records of the turn share identifiers,
	// even when a malformed ID is replaced by a fresh one.
	r.req.UserID = message.CanonicalID(r.req.UserID)
	r.req.ChatID = message.CanonicalID(r.req.ChatID)
	if r.req.Username == "" {
		r.req.Username = DefaultUsername
	}
	if r.req.LLM == "" {
		r.req.LLM = o.cfg.DefaultLLM
	}
	if r.req.Temperature == nil {
		r.req.Temperature = o.cfg.DefaultTemperature
	}
	r.span.SetAttributes(attribute.String("llm.provider", r.req.LLM))
	r.logger = r.logger.With("user_id", r.req.UserID, "chat_id", r.req.ChatID, "llm", r.req.LLM)
	r.logger.Debug("turn started", "message_prefix", prefix(r.req.Message, 10))

	r.enter(FetchingContext)
	window := o.deps.Store.Retrieve(ctx, r.req.UserID, r.req.ChatID, "", o.cfg.HistoryLimit)

	r.enter(Summarizing)
	summary, err := o.deps.Summarizer.Summarize(ctx, summarizer.Transcript(window))
	if err != nil {
		if o.cfg.SummaryPolicy == SummaryAbort {
			return generator.Request{}, fmt.Errorf("%w: %w", ErrSummarization, err)
		}
		r.logger.Warn("summary failed, continuing without context", "error", err)
		summary = summarizer.NoContext
	}

	return generator.Request{
		Prompt:      r.req.Message,
		Context:     summary,
		LLM:         r.req.LLM,
		Temperature: r.req.Temperature,
	}, nil
}

// fail moves the turn to Errored and shapes the error for transports.
func (r *turnRun) fail(err error) (Result, error) {
	r.enter(Errored)
	outcome := "error"
	switch {
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
		r.logger.Info("turn rejected", "error", err)
	default:
		r.logger.Error("turn failed", "error", err)
		err = fmt.Errorf("%w: %w", ErrTurn, err)
	}
	r.finish(outcome, err)
	return Result{Trace: r.trace}, err
}

// persist appends the user and assistant records in that order. The
// assistant record is skipped when no reply text was produced. Failures
// are logged and counted; they never fail the turn.
func (r *turnRun) persist(ctx context.Context, userAt time.Time, res *Result) {
	r.enter(Persisting)
	ctx = context.WithoutCancel(ctx)

	temperature := *r.req.Temperature
	userMsg := message.Message{
		UserID: r.req.UserID,
		ChatID: r.req.ChatID,
		Sender: message.SenderUser,
		Body:   r.req.Message,
		Meta: map[string]any{
			message.MetaChatID:      r.req.ChatID,
			message.MetaProvider:    r.req.LLM,
			message.MetaTemperature: temperature,
			message.MetaUsername:    r.req.Username,
		},
		CreatedAt: userAt,
	}
	assistantMeta := map[string]any{
		message.MetaChatID:      r.req.ChatID,
		message.MetaProvider:    r.req.LLM,
		message.MetaTemperature: temperature,
		message.MetaModel:       res.Model,
	}
	if res.Usage != nil {
		assistantMeta[message.MetaUsage] = map[string]any{
			"prompt_tokens":     res.Usage.PromptTokens,
			"completion_tokens": res.Usage.CompletionTokens,
			"total_tokens":      res.Usage.TotalTokens,
		}
	}
	assistantMsg := message.Message{
		UserID:    r.req.UserID,
		ChatID:    r.req.ChatID,
		Sender:    message.SenderAssistant,
		Body:      res.Reply,
		Meta:      assistantMeta,
		CreatedAt: res.Timestamp,
	}

	records := []message.Message{userMsg, assistantMsg}
	if res.Reply == "" {
		// Nothing reached the client, so there is no reply to record.
		records = records[:1]
		r.logger.Debug("empty reply, assistant record skipped")
	}

	res.Persisted = true
	for _, msg := range records {
		if _, err := r.o.deps.Store.Append(ctx, msg); err != nil {
			res.Persisted = false
			r.logger.Error("persist failed", "sender", string(msg.Sender), "error", err)
			if m := r.o.deps.Metrics; m != nil {
				m.PersistFailed()
			}
		}
	}
}

func (r *turnRun) publish(ctx context.Context, res Result) {
	p := r.o.deps.Publisher
	if p == nil {
		return
	}
	ev := events.TurnCompleted{
		ID:         uuid.NewString(),
		UserID:     res.UserID,
		ChatID:     res.ChatID,
		Mode:       string(r.mode),
		LLM:        r.req.LLM,
		Model:      res.Model,
		Degraded:   res.Degraded,
		Persisted:  res.Persisted,
		ReplyChars: len(res.Reply),
		DurationMS: r.o.deps.Now().Sub(r.started).Milliseconds(),
		At:         res.Timestamp,
	}
	if err := p.PublishTurn(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn("publish turn event failed", "error", err)
	}
}

func (r *turnRun) result(reply string) Result {
	return Result{
		UserID:    r.req.UserID,
		ChatID:    r.req.ChatID,
		Reply:     reply,
		Timestamp: r.o.deps.Now().UTC(),
	}
}

// Run serves a buffered turn.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	ctx, r := o.begin(ctx, ModeBuffered, req)

	greq, err := r.prepare(ctx)
	if err != nil {
		return r.fail(err)
	}
	userAt := o.deps.Now()

	r.enter(Generating)
	reply := o.deps.Generator.Generate(ctx, greq)

	res := r.result(reply.Text)
	res.Sources = reply.Sources
	res.Model = reply.Model
	res.Usage = reply.Usage
	res.Degraded = reply.Degraded

	r.persist(ctx, userAt, &res)
	r.enter(Completed)
	r.publish(ctx, res)
	res.Trace = r.trace

	outcome := "ok"
	if res.Degraded {
		outcome = "degraded"
	}
	r.finish(outcome, nil)
	r.logger.Info("turn completed", "chars", len(res.Reply), "degraded", res.Degraded, "persisted", res.Persisted)
	return res, nil
}

// Stream serves a streaming turn, delivering each piece to sink followed
// by DoneMarker. When the sink fails generation is cancelled, the partial
// reply is still persisted and the returned error wraps ErrTransport.
func (o *Orchestrator) Stream(ctx context.Context, req Request, sink Sink) (Result, error) {
	ctx, r := o.begin(ctx, ModeStream, req)

	greq, err := r.prepare(ctx)
	if err != nil {
		return r.fail(err)
	}
	userAt := o.deps.Now()
	model := o.deps.Generator.ModelName(greq.LLM)

	r.enter(Generating)
	var degraded atomic.Bool
	greq.OnDegraded = func(error) { degraded.Store(true) }
	genCtx, cancel := context.WithCancel(ctx)
	pieces := o.deps.Generator.GenerateStream(genCtx, greq)

	var reply strings.Builder
	var sinkErr error
	for piece := range pieces {
		if sinkErr != nil {
			continue // drain
		}
		if err := sink.Send(ctx, piece); err != nil {
			sinkErr = err
			cancel()
			continue
		}
		reply.WriteString(piece)
	}
	cancel()
	if sinkErr == nil {
		sinkErr = sink.Send(ctx, DoneMarker)
	}

	res := r.result(reply.String())
	res.Model = model
	res.Degraded = degraded.Load()

	r.persist(ctx, userAt, &res)

	if sinkErr != nil {
		r.enter(Errored)
		res.Trace = r.trace
		err := fmt.Errorf("%w: %w", ErrTransport, sinkErr)
		r.logger.Warn("client went away during turn", "error", sinkErr, "delivered_chars", reply.Len())
		r.finish("transport", err)
		return res, err
	}

	r.enter(Completed)
	r.publish(ctx, res)
	res.Trace = r.trace

	outcome := "ok"
	if res.Degraded {
		outcome = "degraded"
	}
	r.finish(outcome, nil)
	r.logger.Info("turn completed", "chars", len(res.Reply), "degraded", res.Degraded, "persisted", res.Persisted)
	return res, nil
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
