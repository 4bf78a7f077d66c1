package imagegen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolConfig sets the polling interval and the two attempt budgets.
type PoolConfig struct {
	Interval time.Duration
	// InlineAttempts applies while the stream is still live.
	InlineAttempts int
	// DrainAttempts applies once JoinAll has been called.
	DrainAttempts int
}

// PoolConfigFrom maps the image section of the config.
func PoolConfigFrom(cfg config.ImageConfig) PoolConfig {
	return PoolConfig{
		Interval:       cfg.PollInterval,
		InlineAttempts: cfg.InlineAttempts,
		DrainAttempts:  cfg.DrainAttempts,
	}
}

// Pool runs one goroutine per image request and hands their results over in
// completion order when JoinAll is called. Each job yields exactly one event:
// Images on success, Apology otherwise.
type Pool struct {
	ctx     context.Context
	gen     Generator
	cfg     PoolConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	group     errgroup.Group
	draining  chan struct{}
	drainOnce sync.Once

	mu      sync.Mutex
	results []events.Event
	spawned int
	joined  bool
}

// NewPool creates a pool whose jobs stop early when ctx is cancelled.
func NewPool(ctx context.Context, gen Generator, cfg PoolConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InlineAttempts <= 0 {
		cfg.InlineAttempts = 50
	}
	if cfg.DrainAttempts < cfg.InlineAttempts {
		cfg.DrainAttempts = cfg.InlineAttempts
	}
	return &Pool{
		ctx:      ctx,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		draining: make(chan struct{}),
	}
}

// Spawn starts a job for prompt keyed by messageID.
func (p *Pool) Spawn(messageID, prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.joined {
		p.logger.Warn("image job spawned after join", zap.String("message_id", messageID))
		return
	}
	p.spawned++

	jobID := id.NewJobID()
	p.metrics.ImageJobStarted()
	p.group.Go(func() error {
		ev, outcome, attempts := p.run(jobID, messageID, prompt)
		p.metrics.ImageJobFinished(outcome, attempts)

		p.mu.Lock()
		p.results = append(p.results, ev)
		p.mu.Unlock()
		return nil
	})
}

// Spawned returns the number of jobs started so far.
func (p *Pool) Spawned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawned
}

// JoinAll switches every job to the drain budget, waits for all of them and
// returns their events in completion order. Later calls return nil.
func (p *Pool) JoinAll() []events.Event {
	p.mu.Lock()
	if p.joined {
		p.mu.Unlock()
		return nil
	}
	p.joined = true
	p.mu.Unlock()

	p.drainOnce.Do(func() { close(p.draining) })
	_ = p.group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.results
	p.results = nil
	return out
}

func (p *Pool) isDraining() bool {
	select {
	case <-p.draining:
		return true
	default:
		return false
	}
}

func (p *Pool) run(jobID id.JobID, messageID, prompt string) (ev events.Event, outcome string, attempts int) {
	logger := p.logger.With(zap.Stringer("job_id", jobID), zap.String("message_id", messageID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("image job panicked", zap.Any("panic", r))
			ev = events.Apology(fmt.Sprintf("Image generation failed: internal error: %v", r))
			outcome = "panic"
		}
	}()

	h, err := p.gen.Start(p.ctx, prompt, messageID)
	if err != nil {
		logger.Warn("image generation start failed", zap.Error(err))
		return events.Apology(fmt.Sprintf("Image generation failed: %v", err)), "start_error", 0
	}

	images, attempts, err := p.poll(h)
	if err != nil {
		logger.Warn("image generation failed", zap.Int("attempts", attempts), zap.Error(err))
		return events.Apology(fmt.Sprintf("Image generation failed: %v", err)), "poll_error", attempts
	}

	logger.Debug("image generation finished", zap.Int("attempts", attempts), zap.Int("images", len(images)))
	return events.Images(images), "images", attempts
}

// poll retries at a fixed interval. A job that spends its inline budget while
// the stream is live waits for drain and continues up to the drain budget.
func (p *Pool) poll(h Handle) ([]events.Image, int, error) {
	attempts := 0
	for {
		draining := p.isDraining()
		budget := p.cfg.InlineAttempts
		if draining {
			budget = p.cfg.DrainAttempts
		}
		if attempts >= budget {
			if draining {
				return nil, attempts, ErrTimedOut
			}
			select {
			case <-p.draining:
				continue
			case <-p.ctx.Done():
				return nil, attempts, p.ctx.Err()
			}
		}

		attempts++
		images, done, err := p.gen.Poll(p.ctx, h)
		if err != nil {
			return nil, attempts, err
		}
		if done {
			return images, attempts, nil
		}

		if err := p.sleep(); err != nil {
			return nil, attempts, err
		}
	}
}

func (p *Pool) sleep() error {
	if p.cfg.Interval <= 0 {
		return p.ctx.Err()
	}
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Generate runs a single job to completion with the drain budget.
func Generate(ctx context.Context, gen Generator, cfg PoolConfig, prompt, messageID string, logger *zap.Logger, metrics *monitoring.Metrics) events.Event {
	pool := NewPool(ctx, gen, cfg, logger, metrics)
	pool.Spawn(messageID, prompt)
	results := pool.JoinAll()
	if len(results) == 0 {
		return events.Apology("Image generation failed: no result")
	}
	return results[0]
}
