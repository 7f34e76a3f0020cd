package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-login/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDLoginEvent      = "login.event.deliver"
	ScriptPathLoginEvent = "login.event"
	DefaultDedupPolicy   = "drop"
)

// RetryPolicy bounds redelivery of event jobs.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a login event to a go-job message. The event id is
// the idempotency key so a redelivered event is deduplicated by the queue.
func ToExecutionMessage(event core.LoginEvent, dedupPolicy string) (*job.ExecutionMessage, error) {
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("gojob: event id is required")
	}
	params, err := eventParameters(event)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dedupPolicy) == "" {
		dedupPolicy = DefaultDedupPolicy
	}
	return &job.ExecutionMessage{
		JobID:          JobIDLoginEvent,
		ScriptPath:     ScriptPathLoginEvent + "." + string(event.Kind),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(event.ID),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(dedupPolicy)),
	}, nil
}

// FromExecutionMessage decodes the login event carried by msg.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.LoginEvent, error) {
	if msg == nil {
		return core.LoginEvent{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDLoginEvent {
		return core.LoginEvent{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, err := json.Marshal(msg.Parameters)
	if err != nil {
		return core.LoginEvent{}, fmt.Errorf("gojob: encode parameters: %w", err)
	}
	var event core.LoginEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return core.LoginEvent{}, fmt.Errorf("gojob: decode login event: %w", err)
	}
	if event.ID == "" {
		event.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	return event, nil
}

func eventParameters(event core.LoginEvent) (map[string]any, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode login event: %w", err)
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("gojob: encode login event: %w", err)
	}
	return params, nil
}

// EventEnqueuer is an outbound listener that hands every login event to a
// go-job queue instead of delivering it inline.
type EventEnqueuer struct {
	enqueuer    queue.Enqueuer
	dedupPolicy string
}

func NewEventEnqueuer(enqueuer queue.Enqueuer, dedupPolicy string) *EventEnqueuer {
	return &EventEnqueuer{enqueuer: enqueuer, dedupPolicy: dedupPolicy}
}

func (a *EventEnqueuer) Name() string {
	return "gojob"
}

func (a *EventEnqueuer) OnEvent(ctx context.Context, event core.LoginEvent) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := ToExecutionMessage(event, a.dedupPolicy)
	if err != nil {
		return err
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

// EventConsumer pulls event jobs and hands them to a listener. A listener
// error nacks the delivery under the retry policy; a message that cannot be
// decoded is dead-lettered.
type EventConsumer struct {
	dequeuer queue.Dequeuer
	listener core.EventListener
	policy   RetryPolicy
	delay    time.Duration
}

func NewEventConsumer(dequeuer queue.Dequeuer, listener core.EventListener, policy RetryPolicy) *EventConsumer {
	return &EventConsumer{
		dequeuer: dequeuer,
		listener: listener,
		policy:   policy,
		delay:    time.Second,
	}
}

// ConsumeOne processes a single delivery. attempt is the delivery attempt
// reported by the queue, starting at 1.
func (c *EventConsumer) ConsumeOne(ctx context.Context, attempt int) error {
	if c == nil || c.dequeuer == nil || c.listener == nil {
		return fmt.Errorf("gojob: event consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	event, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return nackErr
		}
		return err
	}
	if err := c.listener.OnEvent(ctx, event); err != nil {
		opts := c.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   c.delay,
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

// WorkerHookAdapter reports event job lifecycle through the login metrics
// recorder.
type WorkerHookAdapter struct {
	metrics core.MetricsRecorder
}

func NewWorkerHookAdapter(metrics core.MetricsRecorder) *WorkerHookAdapter {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &WorkerHookAdapter{metrics: metrics}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.record(ctx, "start", event)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.record(ctx, "success", event)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.record(ctx, "failure", event)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.record(ctx, "retry", event)
}

func (a *WorkerHookAdapter) record(ctx context.Context, phase string, event worker.Event) {
	if a == nil || a.metrics == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	tags := map[string]string{"phase": phase}
	if message != nil {
		tags["job_id"] = strings.TrimSpace(message.JobID)
		tags["script_path"] = strings.TrimSpace(message.ScriptPath)
	}
	a.metrics.IncCounter(ctx, "login.event_job.total", 1, tags)
	if event.Duration > 0 {
		a.metrics.ObserveHistogram(ctx, "login.event_job.duration_ms", float64(event.Duration.Milliseconds()), tags)
	}
}

var (
	_ core.EventListener = (*EventEnqueuer)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
)
