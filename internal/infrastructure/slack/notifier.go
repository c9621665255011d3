package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gke-notify/internal/domain"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "gke-notify/1"
	maxErrorBody   = 512
)

// RetryPolicy controls redelivery of a message to the webhook.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts, including the first
	InitialBackoff time.Duration // wait before the second attempt
	MaxBackoff     time.Duration // cap for any single wait, Retry-After included
	Multiplier     float64       // growth factor between waits
}

// DefaultRetryPolicy makes four attempts waiting 250ms, 500ms and 1s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
// Rate limiting and server errors are; any other 4xx is final.
func (p RetryPolicy) RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Config holds the webhook target. An empty URL disables delivery.
type Config struct {
	WebhookURL   string
	Timeout      time.Duration // per attempt
	TotalTimeout time.Duration // all attempts and waits together; 0 means unbounded
	Retry        RetryPolicy
}

// Notifier posts formatted messages to a Slack incoming webhook.
type Notifier struct {
	url    string
	client *http.Client
	policy RetryPolicy
	budget time.Duration
	logger zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Notifier. Returns an error if the URL is set but invalid.
func New(cfg Config, logger zerolog.Logger) (*Notifier, error) {
	if cfg.WebhookURL != "" {
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("webhook URL must include a host")
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		policy: policy,
		budget: cfg.TotalTimeout,
		logger: logger.With().Str("component", "slack").Logger(),
		sleep:  sleepContext,
	}, nil
}

// Configured reports whether a webhook URL is set.
func (n *Notifier) Configured() bool { return n.url != "" }

// Policy returns the retry policy in effect.
func (n *Notifier) Policy() RetryPolicy { return n.policy }

// Budget returns the total delivery budget, 0 when unbounded.
func (n *Notifier) Budget() time.Duration { return n.budget }

type webhookPayload struct {
	Text   string         `json:"text"`
	Blocks []domain.Block `json:"blocks"`
}

// Notify delivers msg. It never returns an error: every failure is folded
// into the outcome so the caller can log it and carry on.
func (n *Notifier) Notify(ctx context.Context, msg domain.FormattedMessage) domain.DeliveryOutcome {
	if !n.Configured() {
		return domain.DeliveryOutcome{Status: domain.DeliverySkippedNotConfigured}
	}

	body, err := json.Marshal(webhookPayload{Text: msg.Text, Blocks: msg.Blocks})
	if err != nil {
		return domain.DeliveryOutcome{
			Status: domain.DeliveryFailed,
			Err:    &domain.DeliveryError{Err: fmt.Errorf("marshal webhook payload: %w", err)},
		}
	}

	// The push request is acknowledged only after delivery returns, so the
	// whole retry loop has to fit in the budget.
	if n.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.budget)
		defer cancel()
	}

	var lastErr *domain.DeliveryError
	for attempt := 1; attempt <= n.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := n.policy.Backoff(attempt - 1)
			if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests {
				wait = max(wait, n.retryAfter(lastErr))
			}
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
				return domain.DeliveryOutcome{
					Status:   domain.DeliveryFailedAfterRetries,
					Attempts: attempt - 1,
					Err:      lastErr,
				}
			}
			if err := n.sleep(ctx, wait); err != nil {
				return domain.DeliveryOutcome{
					Status:   domain.DeliveryFailedAfterRetries,
					Attempts: attempt - 1,
					Err:      &domain.DeliveryError{Retryable: true, Err: fmt.Errorf("context cancelled during backoff: %w", err)},
				}
			}
		}

		lastErr = n.post(ctx, body)
		if lastErr == nil {
			return domain.DeliveryOutcome{Status: domain.DeliveryDelivered, Attempts: attempt}
		}
		if !lastErr.Retryable {
			return domain.DeliveryOutcome{Status: domain.DeliveryFailed, Attempts: attempt, Err: lastErr}
		}

		n.logger.Debug().
			Int("attempt", attempt).
			Int("max_attempts", n.policy.MaxAttempts).
			Err(lastErr).
			Msg("chat delivery transient failure")
	}

	return domain.DeliveryOutcome{
		Status:   domain.DeliveryFailedAfterRetries,
		Attempts: n.policy.MaxAttempts,
		Err:      lastErr,
	}
}

// post executes a single POST and classifies the failure, if any.
func (n *Notifier) post(ctx context.Context, body []byte) *domain.DeliveryError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		// A cancelled caller context is final; timeouts and connection errors are not.
		retryable := !errors.Is(err, context.Canceled)
		return &domain.DeliveryError{Retryable: retryable, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
		Retryable:  n.policy.RetryableStatus(resp.StatusCode),
		Err:        &retryAfterError{header: resp.Header.Get("Retry-After")},
	}
}

// retryAfter returns the server-requested wait, capped at MaxBackoff.
func (n *Notifier) retryAfter(de *domain.DeliveryError) time.Duration {
	var ra *retryAfterError
	if !errors.As(de, &ra) || ra.header == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra.header)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if n.policy.MaxBackoff > 0 && d > n.policy.MaxBackoff {
		return n.policy.MaxBackoff
	}
	return d
}

// retryAfterError carries the Retry-After header of a non-2xx response.
type retryAfterError struct {
	header string
}

func (e *retryAfterError) Error() string {
	if e.header == "" {
		return "non-2xx response"
	}
	return "non-2xx response, retry after " + e.header
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedactURL keeps scheme and host of a webhook URL for logging. Slack
// webhook paths are credentials.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "<invalid-url>"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/REDACTED"
}
