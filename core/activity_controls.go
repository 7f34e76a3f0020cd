package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ActivityRetentionPolicy bounds the audit trail. Zero values disable the
// corresponding limit.
type ActivityRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type ActivityRetentionPruner interface {
	Prune(ctx context.Context, policy ActivityRetentionPolicy) (deleted int, err error)
}

// BufferedActivitySink moves activity writes off the orchestrator's
// completion path. When the queue is full, or the primary sink rejects an
// entry, the entry goes to the fallback sink if one is set.
type BufferedActivitySink struct {
	primary  ActivitySink
	fallback ActivitySink
	policy   ActivityRetentionPolicy

	queue chan ActivityEntry
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewBufferedActivitySink(
	primary ActivitySink,
	fallback ActivitySink,
	policy ActivityRetentionPolicy,
	bufferSize int,
) (*BufferedActivitySink, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary activity sink is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	sink := &BufferedActivitySink{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan ActivityEntry, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go sink.run()
	return sink, nil
}

func (s *BufferedActivitySink) Record(ctx context.Context, entry ActivityEntry) error {
	if s == nil || s.primary == nil {
		return fmt.Errorf("core: buffered activity sink is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.Metadata = copyAnyMap(entry.Metadata)

	select {
	case <-s.stopCh:
		return s.write(ctx, entry)
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- entry:
		return nil
	default:
		if s.fallback != nil {
			return s.fallback.Record(ctx, entry)
		}
		return nil
	}
}

// ListActivity reads from the primary sink when it can serve reads.
func (s *BufferedActivitySink) ListActivity(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if s == nil || s.primary == nil {
		return ActivityPage{}, fmt.Errorf("core: buffered activity sink is not configured")
	}
	reader, ok := s.primary.(ActivityReader)
	if !ok {
		return ActivityPage{}, fmt.Errorf("core: activity sink %T does not support reads", s.primary)
	}
	return reader.ListActivity(ctx, filter)
}

func (s *BufferedActivitySink) EnforceRetention(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: buffered activity sink is not configured")
	}
	pruner, ok := s.primary.(ActivityRetentionPruner)
	if !ok {
		return 0, nil
	}
	return pruner.Prune(ctx, s.policy)
}

// Close stops the writer after flushing entries that are already queued.
func (s *BufferedActivitySink) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *BufferedActivitySink) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			for {
				select {
				case entry := <-s.queue:
					_ = s.write(context.Background(), entry)
				default:
					return
				}
			}
		case entry := <-s.queue:
			_ = s.write(context.Background(), entry)
		}
	}
}

func (s *BufferedActivitySink) write(ctx context.Context, entry ActivityEntry) error {
	err := s.primary.Record(ctx, entry)
	if err != nil && s.fallback != nil {
		return s.fallback.Record(ctx, entry)
	}
	return err
}

var (
	_ ActivitySink   = (*BufferedActivitySink)(nil)
	_ ActivityReader = (*BufferedActivitySink)(nil)
)
