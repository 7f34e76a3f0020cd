package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-login/core"
	glog "github.com/goliatone/go-logger/glog"
)

const LoggerName = "login"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name == "" {
		name = LoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the login logger once so the orchestrator and the
// event job workers write through the same sink.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// EventLogger is an outbound listener that writes one structured line per
// login event. Failed completions are logged at warn.
type EventLogger struct {
	logger glog.Logger
}

func NewEventLogger(provider glog.LoggerProvider, logger glog.Logger) *EventLogger {
	_, resolved := Resolve(LoggerName, provider, logger)
	return &EventLogger{logger: resolved}
}

func (l *EventLogger) Name() string {
	return "gologger"
}

func (l *EventLogger) OnEvent(ctx context.Context, event core.LoginEvent) error {
	if l == nil || l.logger == nil {
		return nil
	}
	logger := l.logger.WithContext(ctx)
	args := []any{
		"event_id", event.ID,
		"event_kind", string(event.Kind),
		"slot", int(event.Slot),
		"success", event.Success,
	}
	if event.AttemptID != "" {
		args = append(args, "attempt_id", event.AttemptID)
	}
	if event.Identity.IsValid() {
		args = append(args, "federated_id", event.Identity.FederatedID)
	}
	if event.Kind == core.EventLoginStatusChanged {
		args = append(args, "previous", event.PreviousStatus.String(), "current", event.CurrentStatus.String())
	}
	if event.Error != "" {
		args = append(args, "error", event.Error)
	}

	failed := !event.Success && (event.Kind == core.EventLoginComplete || event.Kind == core.EventLogoutComplete)
	if failed {
		logger.Warn("login event", args...)
		return nil
	}
	logger.Info("login event", args...)
	return nil
}

var _ core.EventListener = (*EventLogger)(nil)
