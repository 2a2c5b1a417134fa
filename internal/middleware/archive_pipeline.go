package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
)

// Recorder is the downstream archive the pipeline feeds.
type Recorder interface {
	Record(ctx context.Context, in *models.Insight) error
}

// ErrArchiveBufferFull is returned by Record when the writer has fallen behind.
var ErrArchiveBufferFull = errors.New("archive buffer full")

// ArchivePipeline sits between request handling and the archive backend.
// Record only throttles and enqueues; a single writer goroutine forwards
// insights to the backend with its own deadline and retries failed writes.
type ArchivePipeline struct {
	rec          Recorder
	metrics      domrepo.Metrics
	maxRPS       int
	bufSize      int
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	maxWait      time.Duration
	bufCh        chan *models.Insight
	stopCh       chan struct{}
	doneCh       chan struct{}

	mu        sync.Mutex
	started   bool
	lastSeen  map[string]time.Time
	lastSweep time.Time
}

type PipelineOption func(*ArchivePipeline)

// WithMaxRPS caps archived insights per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the initial and maximum delay between write attempts.
func WithRetryBackoff(initial, max time.Duration) PipelineOption {
	return func(p *ArchivePipeline) {
		if initial > 0 {
			p.backoff = initial
		}
		if max >= p.backoff {
			p.maxWait = max
		}
	}
}

// WithMaxAttempts bounds the writes per insight before it is dropped.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithWriteTimeout(d time.Duration) PipelineOption {
	return func(p *ArchivePipeline) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

func NewArchivePipeline(rec Recorder, metrics domrepo.Metrics, opts ...PipelineOption) *ArchivePipeline {
	p := &ArchivePipeline{
		rec:          rec,
		metrics:      metrics,
		maxRPS:       20,
		bufSize:      1000,
		maxAttempts:  5,
		writeTimeout: 5 * time.Second,
		backoff:      50 * time.Millisecond,
		maxWait:      2 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		lastSeen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Insight, p.bufSize)
	return p
}

// Start launches the writer. It runs until Stop, not until ctx is done:
// ctx only supplies values to the backend calls.
func (p *ArchivePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.drain(context.WithoutCancel(ctx))
}

func (p *ArchivePipeline) drain(base context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case in := <-p.bufCh:
			if !p.write(base, in) {
				return
			}
		}
	}
}

// write reports false when Stop interrupted the retry wait.
func (p *ArchivePipeline) write(base context.Context, in *models.Insight) bool {
	start := time.Now()
	wait := p.backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(base, p.writeTimeout)
		err := p.rec.Record(ctx, in)
		cancel()
		if err == nil {
			p.metrics.RecordLatency("archive_write", time.Since(start).Seconds())
			return true
		}
		if attempt >= p.maxAttempts {
			p.metrics.RecordError("archive_drop")
			return true
		}
		p.metrics.RecordError("archive_retry")
		select {
		case <-time.After(wait):
		case <-p.stopCh:
			return false
		}
		if wait *= 2; wait > p.maxWait {
			wait = p.maxWait
		}
	}
}

// Stop ends the writer after the write in progress. Insights still buffered are dropped.
func (p *ArchivePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Buffered reports how many insights wait for the writer.
func (p *ArchivePipeline) Buffered() int { return len(p.bufCh) }

// Record validates and throttles an insight and queues it for the writer. It never blocks.
func (p *ArchivePipeline) Record(_ context.Context, in *models.Insight) error {
	if err := validateInsight(in); err != nil {
		p.metrics.RecordError("archive_validate")
		return err
	}
	if !p.allow(in.Symbol, time.Now()) {
		p.metrics.RecordError("archive_throttle")
		return nil
	}
	select {
	case p.bufCh <- in:
		return nil
	default:
		p.metrics.RecordError("archive_buffer_full")
		return ErrArchiveBufferFull
	}
}

func validateInsight(in *models.Insight) error {
	switch {
	case in == nil:
		return fmt.Errorf("insight nil")
	case in.ID == "":
		return fmt.Errorf("insight id empty")
	case in.Symbol == "":
		return fmt.Errorf("symbol empty")
	case in.GeneratedAt <= 0:
		return fmt.Errorf("generated_at invalid")
	}
	return nil
}

// allow keeps one timestamp per symbol. Entries older than a second can no
// longer throttle anything and are swept at most once per second.
func (p *ArchivePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.lastSweep) >= time.Second {
		for sym, seen := range p.lastSeen {
			if now.Sub(seen) >= time.Second {
				delete(p.lastSeen, sym)
			}
		}
		p.lastSweep = now
	}
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
