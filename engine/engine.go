package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	iface "ImageInsightServer/interface"

	"go.uber.org/zap"
)

// ErrClosed is returned by Detect once the engine has been destroyed.
var ErrClosed = errors.New("engine closed")

var restartDelay = time.Second

type jobPackage struct {
	ctx    context.Context
	image  iface.ImageData
	result chan jobResult
}

type jobResult struct {
	tensors []iface.Tensor
	err     error
}

// Engine is a pool of networks, one per worker goroutine. Each worker is
// pinned to its OS thread for the lifetime of its network.
type Engine struct {
	cfg  iface.EngineConfig
	log  *zap.Logger
	load func(iface.EngineConfig) (runner, error)

	jobs      chan jobPackage
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New loads cfg.Workers darknet networks and starts their workers. It fails
// if any network cannot be loaded.
func New(cfg iface.EngineConfig, log *zap.Logger) (*Engine, error) {
	return newEngine(cfg, log, loadDetector)
}

func newEngine(cfg iface.EngineConfig, log *zap.Logger, load func(iface.EngineConfig) (runner, error)) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		log.Warn("invalid workersNum, defaulting to 1", zap.Int("workersNum", cfg.Workers))
		cfg.Workers = 1
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	e := &Engine{
		cfg:  cfg,
		log:  log,
		load: load,
		jobs: make(chan jobPackage, cfg.Workers),
		quit: make(chan struct{}),
	}

	ready := make(chan error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.startWorker(i, ready)
	}
	var errs []error
	for i := 0; i < cfg.Workers; i++ {
		if err := <-ready; err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		e.Destroy()
		return nil, errors.Join(errs...)
	}
	return e, nil
}

// startWorker loads the network on a locked thread, reports the outcome on
// ready and then serves jobs until the engine is destroyed.
func (e *Engine) startWorker(workerID int, ready chan<- error) {
	defer e.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r, err := e.load(e.cfg)
	if err != nil {
		ready <- fmt.Errorf("worker %d: %w", workerID, err)
		return
	}
	defer func() {
		if err := r.Close(); err != nil {
			e.log.Error("failed to release network", zap.Int("worker", workerID), zap.Error(err))
		}
	}()
	ready <- nil
	e.log.Info("worker created", zap.Int("worker", workerID))

	for !e.runWorker(workerID, r) {
		select {
		case <-e.quit:
			return
		case <-time.After(restartDelay):
		}
		e.log.Warn("worker restarted", zap.Int("worker", workerID))
	}
}

// runWorker serves jobs until quit (returns true) or a panic escapes a
// job (returns false so the caller restarts it).
func (e *Engine) runWorker(workerID int, r runner) (stopped bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("worker panic, restarting",
				zap.Int("worker", workerID),
				zap.Any("panic", rec),
				zap.Duration("delay", restartDelay))
			stopped = false
		}
	}()
	for {
		select {
		case <-e.quit:
			return true
		case job := <-e.jobs:
			e.handle(workerID, r, job)
		}
	}
}

func (e *Engine) handle(workerID int, r runner, job jobPackage) {
	if err := job.ctx.Err(); err != nil {
		job.result <- jobResult{err: err}
		return
	}
	var res jobResult
	defer func() {
		if rec := recover(); rec != nil {
			job.result <- jobResult{err: fmt.Errorf("worker %d panic: %v", workerID, rec)}
			panic(rec)
		}
		job.result <- res
	}()
	res.tensors, res.err = r.Forward(job.image)
}

// Detect implements iface.Backend. It queues the image for the next free
// worker and waits for its output or for ctx to end.
func (e *Engine) Detect(ctx context.Context, img iface.ImageData) ([]iface.Tensor, error) {
	job := jobPackage{ctx: ctx, image: img, result: make(chan jobResult, 1)}
	select {
	case <-e.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case e.jobs <- job:
	}
	select {
	case res := <-job.result:
		return res.tensors, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.quit:
		return nil, ErrClosed
	}
}

func (e *Engine) CheckConfig() iface.EngineConfig {
	cfg := e.cfg
	cfg.Names = append([]string(nil), e.cfg.Names...)
	return cfg
}

// Destroy stops every worker and releases their networks. It is safe to call
// more than once.
func (e *Engine) Destroy() {
	e.closeOnce.Do(func() {
		close(e.quit)
	})
	e.wg.Wait()
}
