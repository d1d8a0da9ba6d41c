package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// ErrCircuitOpen is returned when the breaker has tripped and a delivery was
// skipped rather than attempted, matching the teacher's own phrasing for the
// same condition on its notification controller.
var ErrCircuitOpen = errors.New("slack circuit breaker is open (too many failures, preventing cascading failures)")

// Notifier posts incident lifecycle updates to a single Slack channel. It
// never blocks the orchestrator's pipeline goroutine on Slack's latency or
// failure modes: every call runs through its own circuit breaker, separate
// from the executor's, so a Slack outage can never throttle remediation.
type Notifier struct {
	client  *slack.Client
	channel string
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewNotifier builds a Notifier posting to channel with a bot token.
func NewNotifier(token, channel string, logger *zap.Logger) *Notifier {
	return NewNotifierWithClient(slack.New(token), channel, logger)
}

// NewNotifierWithClient builds a Notifier around an already-constructed
// slack.Client, letting tests point it at a local server via
// slack.OptionAPIURL instead of the real Slack API.
func NewNotifierWithClient(client *slack.Client, channel string, logger *zap.Logger) *Notifier {
	settings := gobreaker.Settings{
		Name:        "slack-notifier",
		MaxRequests: 2,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Notifier{
		client:  client,
		channel: channel,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

// Notify posts a sanitized summary of one lifecycle event (e.g. "action
// executed", "incident resolved") for inc. Failures are logged, never
// returned to the pipeline as fatal — a missed Slack post must never stall
// or fail an incident.
func (n *Notifier) Notify(ctx context.Context, inc incident.Incident, event string) {
	text := Sanitize(fmt.Sprintf("[%s] incident %s (%s): %s", event, inc.IncidentID, inc.Alert.Service, inc.Alert.Title))

	_, err := n.breaker.Execute(func() (any, error) {
		_, _, postErr := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
		return nil, postErr
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		n.logger.Warn("slack notification skipped", zap.Error(ErrCircuitOpen), zap.String("incident_id", inc.IncidentID))
	default:
		n.logger.Warn("slack notification failed", zap.Error(err), zap.String("incident_id", inc.IncidentID))
	}
}
