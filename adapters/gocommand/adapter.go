package gocommand

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// MessagePrefix namespaces every login command and query type.
const MessagePrefix = "login."

// ValidateMessageContract checks that msg has a namespaced Type() and passes
// its own Validate(), when it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	return validateMessageType(m.Type())
}

func validateMessageType(msgType string) error {
	msgType = strings.TrimSpace(msgType)
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, MessagePrefix) {
		return fmt.Errorf("gocommand: message type %q must start with %q", msgType, MessagePrefix)
	}
	return nil
}

// RegistryAdapter registers login handlers on a go-command registry and
// subscribes them on the dispatcher. Subscriptions made through
// RegisterAndSubscribe and RegisterAndSubscribeQuery are kept so Close can
// remove them.
type RegistryAdapter struct {
	registry *command.Registry

	mu            sync.Mutex
	types         []string
	subscriptions []commanddispatcher.Subscription
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// MessageTypes lists the subscribed message types in registration order.
func (a *RegistryAdapter) MessageTypes() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.types...)
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery registers a querier. go-command keeps commands and queries
// in the same registry.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	return a.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run as background jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Close removes every tracked subscription, newest first.
func (a *RegistryAdapter) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	subs := a.subscriptions
	a.subscriptions = nil
	a.types = nil
	a.mu.Unlock()
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i] != nil {
			subs[i].Unsubscribe()
		}
	}
}

func (a *RegistryAdapter) mark() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscriptions)
}

// rollback unsubscribes everything tracked after mark.
func (a *RegistryAdapter) rollback(mark int) {
	a.mu.Lock()
	if mark < 0 || mark > len(a.subscriptions) {
		a.mu.Unlock()
		return
	}
	subs := append([]commanddispatcher.Subscription(nil), a.subscriptions[mark:]...)
	a.subscriptions = a.subscriptions[:mark]
	a.types = a.types[:mark]
	a.mu.Unlock()
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i] != nil {
			subs[i].Unsubscribe()
		}
	}
}

func (a *RegistryAdapter) claim(msgType string) error {
	if err := validateMessageType(msgType); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if slices.Contains(a.types, msgType) {
		return fmt.Errorf("gocommand: %s is already registered", msgType)
	}
	a.types = append(a.types, msgType)
	return nil
}

func (a *RegistryAdapter) release(msgType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = slices.DeleteFunc(a.types, func(existing string) bool {
		return existing == msgType
	})
}

func (a *RegistryAdapter) track(sub commanddispatcher.Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscriptions = append(a.subscriptions, sub)
}

func messageTypeOf[T any]() string {
	var zero T
	if msg, ok := any(zero).(command.Message); ok {
		return msg.Type()
	}
	return ""
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe registers cmd and subscribes it for its message type.
// A message type can be subscribed once per adapter.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	msgType := messageTypeOf[T]()
	if err := adapter.claim(msgType); err != nil {
		return nil, err
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		adapter.release(msgType)
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	adapter.track(subscription)
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	msgType := messageTypeOf[T]()
	if err := adapter.claim(msgType); err != nil {
		return nil, err
	}
	if err := adapter.RegisterQuery(qry); err != nil {
		adapter.release(msgType)
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	adapter.track(subscription)
	return subscription, nil
}
