package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LocalBus delivers events in-process. It is used when no NATS server is
// configured; delivery is at-most-once.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string][]*localSub
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

type localSub struct {
	h       Handler
	stopped bool
}

func NewLocalBus(logger *zap.SugaredLogger) *LocalBus {
	return &LocalBus{subs: make(map[string][]*localSub), logger: logger}
}

func (b *LocalBus) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}

	b.mu.RLock()
	subs := append([]*localSub(nil), b.subs[subject]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.wg.Add(1)
		go func(s *localSub) {
			defer b.wg.Done()
			b.mu.RLock()
			stopped := s.stopped
			b.mu.RUnlock()
			if stopped {
				return
			}
			if err := s.h(context.WithoutCancel(ctx), subject, data); err != nil {
				b.logger.Errorw("event handler failed", "subject", subject, "error", err)
			}
		}(s)
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, subject, _ string, h Handler) (func(), error) {
	s := &localSub{h: h}
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		s.stopped = true
		b.mu.Unlock()
	}, nil
}

// Close waits for in-flight handlers.
func (b *LocalBus) Close() error {
	b.wg.Wait()
	return nil
}
