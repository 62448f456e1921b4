// Package worker реализует ограниченный пул горутин для CPU-ёмких задач
// (построение мешей вне потока симуляции).
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/annel0/voxel-engine/internal/logging"
)

// ErrPoolClosed возвращается при отправке задачи в закрытый пул
var ErrPoolClosed = errors.New("worker: pool closed")

// Pool - фиксированный набор горутин, читающих задачи из общей очереди.
// Паника в задаче перехватывается, отправляется в Sentry и не убивает воркер.
type Pool struct {
	queue  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *logging.Logger
}

// New создаёт пул из workers горутин с очередью queueSize.
// workers <= 0 означает runtime.NumCPU().
func New(workers, queueSize int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		queue:  make(chan func(), queueSize),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for f := range p.queue {
		p.run(f)
	}
}

func (p *Pool) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			hub := sentry.CurrentHub().Clone()
			hub.RecoverWithContext(context.Background(), r)
			if p.logger != nil {
				p.logger.Error("паника в задаче пула: %v", r)
			}
		}
	}()
	f()
}

// Submit ставит задачу в очередь, блокируясь при заполненной очереди
// до освобождения места или отмены ctx.
func (p *Pool) Submit(ctx context.Context, f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- f:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: submit: %w", ctx.Err())
	}
}

// Close прекращает приём задач и дожидается выполнения уже поставленных
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
