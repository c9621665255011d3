// Package notification runs the push pipeline: decode the envelope, parse
// the event, format it, log it, then hand it to the chat notifier.
package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gke-notify/internal/application/envelope"
	"github.com/gke-notify/internal/application/event"
	"github.com/gke-notify/internal/application/format"
	"github.com/gke-notify/internal/domain"
	"github.com/gke-notify/internal/infrastructure/sns"
	"github.com/gke-notify/internal/pkg/id"
)

// Notifier delivers a formatted message to the chat target.
type Notifier interface {
	Configured() bool
	Notify(ctx context.Context, msg domain.FormattedMessage) domain.DeliveryOutcome
}

// Result is what one push message produced.
type Result struct {
	MessageID string
	Event     domain.NotificationEvent
	Message   domain.FormattedMessage
	Outcome   domain.DeliveryOutcome
}

type Service interface {
	// Process runs the whole pipeline. Only envelope and parse failures are
	// returned as errors; delivery failures end up in Result.Outcome.
	Process(ctx context.Context, env domain.PushEnvelope) (*Result, error)
	// Preview decodes, parses and formats without delivering anything.
	Preview(ctx context.Context, env domain.PushEnvelope) (*Result, error)
}

// Options are read once at startup.
type Options struct {
	ProjectID                string
	SuppressNodePoolUpgrades bool
}

type service struct {
	parser   *event.Parser
	notifier Notifier
	mirror   sns.Publisher // nil when no topic is configured
	opts     Options
	logger   zerolog.Logger
}

func NewService(parser *event.Parser, notifier Notifier, mirror sns.Publisher, opts Options, logger zerolog.Logger) Service {
	if parser == nil {
		parser = event.NewParser(nil)
	}
	return &service{
		parser:   parser,
		notifier: notifier,
		mirror:   mirror,
		opts:     opts,
		logger:   logger,
	}
}

func (s *service) Preview(_ context.Context, env domain.PushEnvelope) (*Result, error) {
	return s.classify(env)
}

func (s *service) Process(ctx context.Context, env domain.PushEnvelope) (*Result, error) {
	res, err := s.classify(env)
	if err != nil {
		return nil, err
	}
	h := res.Event.Header()
	log := s.logger.With().
		Str("message_id", res.MessageID).
		Str("subscription", env.Subscription).
		Str("event_type", h.Type).
		Bool("known_type", s.parser.Known(h.Type)).
		Str("resource", h.Resource.Label()).
		Logger()

	// The summary is logged whatever happens to delivery.
	log.Info().Msg(res.Message.Text)

	res.Outcome = s.deliver(ctx, res)
	switch {
	case res.Outcome.Failed():
		log.Error().
			Err(res.Outcome.Err).
			Str("outcome", string(res.Outcome.Status)).
			Int("attempts", res.Outcome.Attempts).
			Msg("chat delivery failed")
	default:
		log.Debug().
			Str("outcome", string(res.Outcome.Status)).
			Int("attempts", res.Outcome.Attempts).
			Msg("chat delivery finished")
	}

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, res.Event, res.Message); err != nil {
			log.Error().Err(err).Msg("SNS mirror failed")
		}
	}
	return res, nil
}

// classify decodes, parses and formats.
func (s *service) classify(env domain.PushEnvelope) (*Result, error) {
	raw, err := envelope.Decode(env)
	if err != nil {
		return nil, err
	}

	var ev domain.NotificationEvent
	if isNativeShape(env.Message.Attributes) {
		ev, err = s.parser.ParseAttributes(env.Message.Attributes, raw)
	} else {
		ev, err = s.parser.Parse(raw)
	}
	if err != nil {
		return nil, err
	}

	h := ev.Header()
	h.PublishedAt = envelope.PublishTime(env)
	if h.Project == "" {
		h.Project = env.Message.Attribute(domain.AttrProjectID)
	}

	return &Result{
		MessageID: id.OrNew(env.Message.ID()),
		Event:     ev,
		Message:   format.Format(ev, s.opts.ProjectID),
	}, nil
}

func (s *service) deliver(ctx context.Context, res *Result) domain.DeliveryOutcome {
	if s.notifier == nil || !s.notifier.Configured() {
		return domain.DeliveryOutcome{Status: domain.DeliverySkippedNotConfigured}
	}
	if ua, ok := res.Event.(*domain.UpgradeAvailableEvent); ok && s.opts.SuppressNodePoolUpgrades && ua.IsNodePool() {
		return domain.DeliveryOutcome{Status: domain.DeliverySkippedSuppressed}
	}
	return s.notifier.Notify(ctx, res.Message)
}

// isNativeShape reports whether GKE put the event in the attributes rather than in data.
func isNativeShape(attrs map[string]string) bool {
	return attrs[domain.AttrTypeURL] != "" && attrs[domain.AttrPayload] != ""
}
