// Package ratelimit задает паузы между последовательными обращениями к бирже.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer блокирует вызывающего до момента, когда разрешен следующий запрос
type Pacer interface {
	Wait(ctx context.Context) error
}

// Fixed выдерживает минимальный интервал между вызовами Wait. Первый вызов не ждет.
type Fixed struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixed создает пейсер с фиксированной задержкой. Задержка <= 0 дает пейсер без ожидания.
func NewFixed(delay time.Duration) Pacer {
	if delay <= 0 {
		return None{}
	}
	return &Fixed{delay: delay, now: time.Now, sleep: sleep}
}

func (p *Fixed) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.delay - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	p.last = p.now()
	return nil
}

// None пейсер без задержек, используется в тестах и при нулевой паузе
type None struct{}

func (None) Wait(ctx context.Context) error {
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
