package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"playerfeed/internal/domain"
	"playerfeed/internal/engine"
	"playerfeed/internal/metrics"
	"playerfeed/internal/store"
)

// DeliveryLog records delivery outcomes.
type DeliveryLog interface {
	RecordDeliveryAttempt(ctx context.Context, rec store.DeliveryAttemptRecord) error
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// Deliverer performs one signed HTTP callback per job, independent of every
// other delivery. Failures are contained: they are logged, recorded, and
// either rescheduled with backoff or dead-lettered.
type Deliverer struct {
	httpClient *http.Client
	log        DeliveryLog
	retries    *engine.RetryQueue
	breaker    *engine.CircuitBreaker
	limiter    *engine.RateLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	timeout    time.Duration
}

func NewDeliverer(log DeliveryLog, retries *engine.RetryQueue, breaker *engine.CircuitBreaker, limiter *engine.RateLimiter, m *metrics.Metrics, logger *slog.Logger, timeout time.Duration) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		retries:    retries,
		breaker:    breaker,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
		timeout:    timeout,
	}
}

// Deliver POSTs the job's envelope to the subscription URL with an HMAC-SHA256
// signature, bounded by the delivery timeout. Per-subscription gates run
// first: an open circuit records a skipped attempt and defers the job; a rate
// limit hit defers it without consuming an attempt.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) {
	// Detach from the caller so a shutdown mid-flight still bounds the
	// delivery by its own timeout instead of killing it outright.
	ctx = context.WithoutCancel(ctx)

	if state, allowed := d.breaker.AllowRequest(ctx, job.SubscriptionID); !allowed {
		d.recordAttempt(ctx, job, uuid.NewString(), 0, nil, "", fmt.Sprintf("circuit breaker %s", state), domain.DeliveryStatusSkipped)
		d.reschedule(ctx, job, engine.Backoff(job.Attempt))
		return
	}

	if !d.limiter.Allow(ctx, job.SubscriptionID, job.RateLimitPerSecond) {
		// Deferred, not failed: the attempt number is kept.
		d.reschedule(ctx, job, time.Second)
		return
	}

	deliveryID := uuid.NewString()
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.URL, bytes.NewReader(job.Envelope))
	if err != nil {
		d.handleFailure(ctx, job, deliveryID, start, nil, "", fmt.Sprintf("failed to create request: %v", err))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "playerfeed/webhook")
	req.Header.Set("X-Webhook-Id", job.SubscriptionID)
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Event-Id", job.EventID)
	req.Header.Set("X-Event-Type", job.EventType)
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(job.Attempt))
	req.Header.Set("X-Signature", sign(job.Secret, job.Envelope))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.handleFailure(ctx, job, deliveryID, start, nil, "", fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	// Cap the stored response body at 1KB
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.recordAttempt(ctx, job, deliveryID, time.Since(start).Milliseconds(), &resp.StatusCode, string(body), "", domain.DeliveryStatusSuccess)
		d.breaker.RecordSuccess(ctx, job.SubscriptionID)
		d.metrics.Deliveries.WithLabelValues(domain.DeliveryStatusSuccess).Inc()

		d.logger.Info("delivery successful",
			"delivery_id", deliveryID,
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
			"attempt", job.Attempt,
			"status_code", resp.StatusCode,
		)
		return
	}

	d.handleFailure(ctx, job, deliveryID, start, &resp.StatusCode, string(body), fmt.Sprintf("non-2xx response: %d", resp.StatusCode))
}

// handleFailure records the failed attempt, then either schedules the next
// attempt with exponential backoff or dead-letters the delivery.
func (d *Deliverer) handleFailure(ctx context.Context, job engine.DeliveryJob, deliveryID string, start time.Time, statusCode *int, responseBody, errMsg string) {
	d.recordAttempt(ctx, job, deliveryID, time.Since(start).Milliseconds(), statusCode, responseBody, errMsg, domain.DeliveryStatusFailed)
	d.breaker.RecordFailure(ctx, job.SubscriptionID)
	d.metrics.Deliveries.WithLabelValues(domain.DeliveryStatusFailed).Inc()

	d.logger.Warn("delivery failed",
		"delivery_id", deliveryID,
		"event_id", job.EventID,
		"event_type", job.EventType,
		"subscription_id", job.SubscriptionID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", errMsg,
	)

	if job.Attempt < job.MaxAttempts {
		next := job
		next.Attempt++
		d.rescheduleJob(ctx, next, engine.Backoff(job.Attempt))
		return
	}

	err := d.log.InsertDeadLetter(ctx, store.DeadLetterRecord{
		EventID:        job.EventID,
		SubscriptionID: job.SubscriptionID,
		TotalAttempts:  job.Attempt,
		LastHTTPStatus: statusCode,
		LastError:      errMsg,
	})
	if err != nil {
		d.logger.Error("failed to insert dead letter",
			"error", err,
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
		)
		return
	}
	d.metrics.DeadLetters.Inc()
}

// reschedule defers the job as-is, keeping its attempt number.
func (d *Deliverer) reschedule(ctx context.Context, job engine.DeliveryJob, after time.Duration) {
	d.rescheduleJob(ctx, job, after)
}

func (d *Deliverer) rescheduleJob(ctx context.Context, job engine.DeliveryJob, after time.Duration) {
	if err := d.retries.Schedule(ctx, job, time.Now().Add(after)); err != nil {
		d.logger.Error("failed to schedule retry",
			"error", err,
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
		)
		return
	}
	d.metrics.RetriesScheduled.Inc()
}

func (d *Deliverer) recordAttempt(ctx context.Context, job engine.DeliveryJob, deliveryID string, elapsedMs int64, statusCode *int, responseBody, errMsg, status string) {
	err := d.log.RecordDeliveryAttempt(ctx, store.DeliveryAttemptRecord{
		ID:             deliveryID,
		EventID:        job.EventID,
		SubscriptionID: job.SubscriptionID,
		URL:            job.URL,
		EventType:      job.EventType,
		PlayerID:       job.PlayerID,
		AttemptNumber:  job.Attempt,
		Status:         status,
		HTTPStatusCode: statusCode,
		ResponseBody:   responseBody,
		ResponseTimeMs: int(elapsedMs),
		ErrorMessage:   errMsg,
	})
	if err != nil {
		d.logger.Error("failed to record delivery attempt",
			"error", err,
			"event_id", job.EventID,
			"subscription_id", job.SubscriptionID,
		)
	}

	if status == domain.DeliveryStatusSkipped {
		d.metrics.Deliveries.WithLabelValues(domain.DeliveryStatusSkipped).Inc()
	}
}

// sign computes the X-Signature header value: "sha256=" followed by the hex
// HMAC-SHA256 of the exact request body.
func sign(secret string, body []byte) string {
	return "sha256=" + computeHMAC(body, secret)
}

func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
