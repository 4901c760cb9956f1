package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/storage/zapadapter"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
	"go.uber.org/zap"
)

// MentionHelpText answers a bare mention when mention help is enabled.
const MentionHelpText = "想看發話排行嗎？請輸入「@我 3月發話」或「@我 本月發話」。"

// Counter is the Counter Engine.
type Counter interface {
	Increment(ctx context.Context, k tally.Key, messageID string) (bool, error)
}

// Reporter is the Report Builder.
type Reporter interface {
	Build(ctx context.Context, groupID, yearMonth, label string) (string, error)
}

// Replier sends reply messages on the chat platform.
type Replier interface {
	Reply(ctx context.Context, replyToken string, texts ...string) error
}

// Summary tallies what happened to the events of one batch.
type Summary struct {
	Events       int `json:"events"`
	Counted      int `json:"counted"`
	Duplicates   int `json:"duplicates"`
	Reported     int `json:"reported"`
	Mentions     int `json:"mentions"`
	Skipped      int `json:"skipped"`
	Unauthorized int `json:"unauthorized"`
	Failed       int `json:"failed"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUnauthorized
	outcomeCounted
	outcomeDuplicate
	outcomeReported
	outcomeMention
	outcomeFailed
)

// Processor is the webhook orchestrator. It never fails a batch because of
// a single event: per-event errors are logged and summarized.
type Processor struct {
	logger      *zap.SugaredLogger
	classifier  *Classifier
	gate        *Gate
	counter     Counter
	reporter    Reporter
	replier     Replier
	loc         *time.Location
	now         func() time.Time
	mentionHelp bool
}

// ProcessorOption alters the default Processor configuration
type ProcessorOption interface {
	apply(*Processor)
}

type processorOptionFunc func(p *Processor)

func (f processorOptionFunc) apply(p *Processor) { f(p) }

// MentionHelp enables a usage reply to mentions without a directive
func MentionHelp(enabled bool) ProcessorOption {
	return processorOptionFunc(func(p *Processor) {
		p.mentionHelp = enabled
	})
}

// WithClock replaces time.Now for events without a timestamp, used by tests
func WithClock(now func() time.Time) ProcessorOption {
	return processorOptionFunc(func(p *Processor) {
		p.now = now
		p.classifier.now = now
	})
}

func NewProcessor(
	logger *zap.SugaredLogger,
	classifier *Classifier,
	gate *Gate,
	counter Counter,
	reporter Reporter,
	replier Replier,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		logger:     logger,
		classifier: classifier,
		gate:       gate,
		counter:    counter,
		reporter:   reporter,
		replier:    replier,
		loc:        classifier.loc,
		now:        time.Now,
	}
	for _, o := range opts {
		o.apply(p)
	}
	return p
}

// Process handles every event of batch independently and in order.
func (p *Processor) Process(ctx context.Context, batch Batch) Summary {
	logger := p.logger
	if id, ok := zapadapter.IDFromContext(ctx); ok {
		logger = logger.With("request_id", id)
	}

	s := Summary{Events: len(batch.Events)}
	for i := range batch.Events {
		switch p.handleSafely(ctx, logger, batch.Events[i], batch.Destination) {
		case outcomeSkipped:
			s.Skipped++
		case outcomeUnauthorized:
			s.Unauthorized++
		case outcomeCounted:
			s.Counted++
		case outcomeDuplicate:
			s.Duplicates++
		case outcomeReported:
			s.Reported++
		case outcomeMention:
			s.Mentions++
			s.Counted++
		case outcomeFailed:
			s.Failed++
		}
	}

	logger.Debugw("Processed webhook batch", "summary", s)

	return s
}

func (p *Processor) handleSafely(ctx context.Context, logger *zap.SugaredLogger, ev Event, destination string) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Event handling panicked", "webhook_event_id", ev.WebhookEventID, "panic", fmt.Sprint(r))
			o = outcomeFailed
		}
	}()
	return p.handle(ctx, logger, ev, destination)
}

func (p *Processor) handle(ctx context.Context, logger *zap.SugaredLogger, ev Event, destination string) outcome {
	cls := p.classifier.Classify(ev, destination)
	if ign, ok := cls.(Ignored); ok {
		logger.Debugw("Skipping event", "webhook_event_id", ev.WebhookEventID, "reason", ign.Reason)
		return outcomeSkipped
	}

	groupID := ev.Source.GroupID
	if !p.gate.Allowed(ctx, groupID) {
		logger.Infow("Group is not allowed", "group_id", groupID)
		return outcomeUnauthorized
	}

	switch c := cls.(type) {
	case ReportCommand:
		return p.report(ctx, logger, ev, c)
	case Mention:
		o := p.count(ctx, logger, ev)
		if o == outcomeCounted {
			o = outcomeMention
		}
		if p.mentionHelp {
			p.reply(ctx, logger, ev.ReplyToken, MentionHelpText)
		}
		return o
	case PlainMessage:
		return p.count(ctx, logger, ev)
	default:
		logger.Errorw("Unknown classification", "classification", fmt.Sprintf("%T", cls))
		return outcomeFailed
	}
}

func (p *Processor) count(ctx context.Context, logger *zap.SugaredLogger, ev Event) outcome {
	at := ev.Timestamp
	if at.IsZero() {
		at = p.now()
	}

	key := tally.Key{
		GroupID:   ev.Source.GroupID,
		UserID:    ev.Source.UserID,
		YearMonth: tally.MonthKey(at, p.loc),
	}

	counted, err := p.counter.Increment(ctx, key, ev.Message.ID)
	if err != nil {
		logger.Errorw("Cannot increment message count",
			"group_id", key.GroupID, "user_id", key.UserID, "year_month", key.YearMonth, "error", err)
		return outcomeFailed
	}
	if !counted {
		return outcomeDuplicate
	}
	return outcomeCounted
}

func (p *Processor) report(ctx context.Context, logger *zap.SugaredLogger, ev Event, cmd ReportCommand) outcome {
	text, err := p.reporter.Build(ctx, ev.Source.GroupID, cmd.YearMonth, cmd.Label)
	if err != nil {
		logger.Errorw("Cannot build report",
			"group_id", ev.Source.GroupID, "year_month", cmd.YearMonth, "error", err)
		return outcomeFailed
	}

	if !p.reply(ctx, logger, ev.ReplyToken, text) {
		return outcomeFailed
	}
	return outcomeReported
}

func (p *Processor) reply(ctx context.Context, logger *zap.SugaredLogger, token, text string) bool {
	if token == "" {
		logger.Warn("Event has no reply token, dropping reply")
		return false
	}
	if err := p.replier.Reply(ctx, token, text); err != nil {
		logger.Errorw("Cannot send reply", "error", err)
		return false
	}
	return true
}
