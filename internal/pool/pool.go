// Package pool runs pipeline jobs on a fixed set of orchestrators.
package pool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmitchellscott/ditherworks/internal/config"
	"github.com/rmitchellscott/ditherworks/internal/events"
	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/masks"
	"github.com/rmitchellscott/ditherworks/internal/pipeline"
	"github.com/rmitchellscott/ditherworks/internal/storage"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
	"github.com/rmitchellscott/ditherworks/internal/workers"
)

const (
	ModePool   = "pool"
	ModeInline = "inline"
)

// JobResult represents the outcome of one pipeline job
type JobResult struct {
	JobID        string
	Success      bool
	Error        error
	FailedStages int
	Duration     time.Duration
}

// Metrics tracks pool performance
type Metrics struct {
	TotalJobs     int64
	SuccessJobs   int64
	FailedJobs    int64
	FailedStages  int64
	ActiveWorkers int32
	QueueLength   int32
}

// Options configures a Pool
type Options struct {
	Mode       string
	Workers    int
	QueueSize  int
	AuxTimeout time.Duration
	Pipeline   config.Pipeline

	// MaskStore, when set, persists the blue-noise mask between runs
	MaskStore *storage.MaskStore

	// OnResult is called once per finished job
	OnResult func(JobResult)
}

// OptionsFrom maps the runtime configuration onto pool options
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Mode:       cfg.WorkerMode,
		Workers:    cfg.WorkerCount,
		QueueSize:  cfg.QueueSize,
		AuxTimeout: cfg.AuxTimeout,
		Pipeline:   cfg.Pipeline,
	}
}

// Pool manages orchestrator workers processing jobs via channels. The
// mask workers are shared: one Bayer worker answers every orchestrator and
// the blue-noise mask is generated once and delivered to all of them.
type Pool struct {
	opts       Options
	workers    []*worker
	jobChan    chan pipeline.Job
	resultChan chan JobResult
	quitChan   chan struct{}
	wg         sync.WaitGroup
	events     *events.Service
	metrics    *Metrics

	bayer     *workers.BayerWorker
	blueNoise *workers.BlueNoiseWorker

	// inline serializes jobs on the single orchestrator in inline mode
	inline sync.Mutex

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

type worker struct {
	id           int
	pool         *Pool
	orch         *pipeline.Orchestrator
	isProcessing int32 // atomic flag
}

// New creates a pool. Stage selection errors surface here rather than at
// job time.
func New(opts Options, ev *events.Service) (*Pool, error) {
	if opts.Mode == "" {
		opts.Mode = ModePool
	}
	if opts.Mode != ModePool && opts.Mode != ModeInline {
		return nil, fmt.Errorf("unknown worker mode %q", opts.Mode)
	}
	if opts.Workers <= 0 || opts.Mode == ModeInline {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if ev == nil {
		ev = events.NewService()
	}

	stages, err := pipeline.Select(pipeline.DefaultStages(pipeline.OptionsFrom(opts.Pipeline)), opts.Pipeline.Stages)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		opts:       opts,
		workers:    make([]*worker, opts.Workers),
		jobChan:    make(chan pipeline.Job, opts.QueueSize),
		resultChan: make(chan JobResult, opts.QueueSize),
		quitChan:   make(chan struct{}),
		events:     ev,
		metrics:    &Metrics{},
	}

	if usesStage(stages, "bayer-") {
		p.bayer = workers.NewBayerWorker(opts.Workers * max(opts.Pipeline.BayerLevels, 1))
	}
	if usesStage(stages, "mybluenoise") {
		bn := opts.Pipeline.BlueNoise
		bnOpts := masks.BlueNoiseOptions{Size: bn.Size, Budget: bn.Budget, SigmaI: bn.SigmaI, SigmaS: bn.SigmaS}
		if seed := opts.Pipeline.Seed; seed != 0 {
			bnOpts.Rand = rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
		}
		gen, err := masks.NewBlueNoise(bnOpts)
		if err != nil {
			return nil, err
		}
		var store *storage.MaskStore
		if bn.Snapshot {
			store = opts.MaskStore
		}
		p.blueNoise = workers.NewBlueNoiseWorker(gen, store)
	}

	for i := range p.workers {
		seed := opts.Pipeline.Seed
		if seed != 0 {
			seed += uint64(i)
		}
		p.workers[i] = &worker{
			id:   i,
			pool: p,
			orch: pipeline.New(stages, pipeline.NewAux(seed, opts.AuxTimeout)),
		}
	}

	return p, nil
}

func usesStage(stages []pipeline.Stage, prefix string) bool {
	for _, s := range stages {
		if strings.HasPrefix(s.ID, prefix) {
			return true
		}
	}
	return false
}

// Events returns the service job progress is published on
func (p *Pool) Events() *events.Service { return p.events }

// Stages returns the selected pipeline stages
func (p *Pool) Stages() []pipeline.Stage { return p.workers[0].orch.Stages() }

// Start launches the mask workers and, in pool mode, the job workers
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	logging.InfoWithComponent(logging.ComponentPool, "Starting job pool", "mode", p.opts.Mode, "workers", len(p.workers))

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	if p.bayer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = p.bayer.Run(p.ctx)
		}()
		for _, w := range p.workers {
			w.orch.RequestBayerLevels(p.ctx, p.bayer, p.opts.Pipeline.BayerLevels)
		}
	}

	if p.blueNoise != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.blueNoise.Run(p.ctx, workerproto.PortFunc(p.broadcast)); err != nil && p.ctx.Err() == nil {
				logging.ErrorWithComponent(logging.ComponentPool, "Blue noise worker failed", "error", err)
			}
		}()
	}

	if p.opts.Mode == ModeInline {
		return nil
	}

	for _, w := range p.workers {
		p.wg.Add(1)
		go w.start()
	}

	p.wg.Add(1)
	go p.processResults()

	logging.InfoWithComponent(logging.ComponentPool, "Job pool started successfully")
	return nil
}

// broadcast delivers a mask message to every orchestrator
func (p *Pool) broadcast(msg workerproto.Message) error {
	for _, w := range p.workers {
		if err := w.orch.Post(msg); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels running jobs and waits for every goroutine to exit
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	logging.InfoWithComponent(logging.ComponentPool, "Stopping job pool...")

	p.running = false
	p.cancel()
	close(p.quitChan)
	p.wg.Wait()

	for _, w := range p.workers {
		w.orch.Close()
	}

	logging.InfoWithComponent(logging.ComponentPool, "Job pool stopped")
	return nil
}

// Submit queues a job without blocking. In pool mode a full queue drops
// the job and returns false. In inline mode the job runs on the calling
// goroutine before Submit returns; concurrent submitters take turns.
func (p *Pool) Submit(job pipeline.Job) bool {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		logging.WarnWithComponent(logging.ComponentPool, "Pool not running, dropping job", "job_id", job.ID)
		return false
	}

	if p.opts.Mode == ModeInline {
		atomic.AddInt64(&p.metrics.TotalJobs, 1)
		p.inline.Lock()
		result := p.workers[0].processJob(job)
		p.inline.Unlock()
		p.handleResult(result)
		return true
	}

	select {
	case p.jobChan <- job:
		atomic.AddInt32(&p.metrics.QueueLength, 1)
		return true
	default:
		logging.WarnWithComponent(logging.ComponentPool, "Job channel full, dropping job", "job_id", job.ID)
		return false
	}
}

// GetMetrics returns current pool metrics
func (p *Pool) GetMetrics() Metrics {
	return Metrics{
		TotalJobs:     atomic.LoadInt64(&p.metrics.TotalJobs),
		SuccessJobs:   atomic.LoadInt64(&p.metrics.SuccessJobs),
		FailedJobs:    atomic.LoadInt64(&p.metrics.FailedJobs),
		FailedStages:  atomic.LoadInt64(&p.metrics.FailedStages),
		ActiveWorkers: atomic.LoadInt32(&p.metrics.ActiveWorkers),
		QueueLength:   int32(len(p.jobChan)),
	}
}

// processResults processes job results from workers
func (p *Pool) processResults() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quitChan:
			return
		case result := <-p.resultChan:
			p.handleResult(result)
		}
	}
}

// handleResult processes a single job result
func (p *Pool) handleResult(result JobResult) {
	atomic.AddInt64(&p.metrics.FailedStages, int64(result.FailedStages))
	if result.Success {
		atomic.AddInt64(&p.metrics.SuccessJobs, 1)
		logging.InfoWithComponent(logging.ComponentPool, "Job completed",
			"job_id", result.JobID,
			"failed_stages", result.FailedStages,
			"duration_s", result.Duration.Seconds())
	} else {
		atomic.AddInt64(&p.metrics.FailedJobs, 1)
		logging.ErrorWithComponent(logging.ComponentPool, "Job failed", "job_id", result.JobID, "error", result.Error)
	}

	if p.opts.OnResult != nil {
		p.opts.OnResult(result)
	}
}

// start runs a single worker
func (w *worker) start() {
	defer w.pool.wg.Done()

	logging.DebugWithComponent(logging.ComponentPool, "Starting worker", "id", w.id)
	atomic.AddInt32(&w.pool.metrics.ActiveWorkers, 1)
	defer atomic.AddInt32(&w.pool.metrics.ActiveWorkers, -1)

	for {
		select {
		case <-w.pool.quitChan:
			logging.DebugWithComponent(logging.ComponentPool, "Worker stopping", "id", w.id)
			return
		case job := <-w.pool.jobChan:
			atomic.AddInt64(&w.pool.metrics.TotalJobs, 1)
			atomic.AddInt32(&w.pool.metrics.QueueLength, -1)

			result := w.processJob(job)
			select {
			case w.pool.resultChan <- result:
			case <-w.pool.quitChan:
				return
			}
		}
	}
}

// processJob runs one job through this worker's orchestrator
func (w *worker) processJob(job pipeline.Job) JobResult {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer atomic.StoreInt32(&w.isProcessing, 0)

	logging.DebugWithComponent(logging.ComponentPool, "Processing job", "worker_id", w.id, "job_id", job.ID, "source", job.Source)

	failed := 0
	startTime := time.Now()
	err := w.orch.Run(w.pool.ctx, job, func(msg workerproto.Message) {
		if msg.Type == workerproto.TypeFailed {
			failed++
		}
		w.pool.events.Publish(events.FromMessage(job.ID, msg))
	})

	return JobResult{
		JobID:        job.ID,
		Success:      err == nil,
		Error:        err,
		FailedStages: failed,
		Duration:     time.Since(startTime),
	}
}

// IsProcessing returns true if the worker is currently processing a job
func (w *worker) IsProcessing() bool {
	return atomic.LoadInt32(&w.isProcessing) == 1
}

// Busy returns the number of workers currently processing a job
func (p *Pool) Busy() int {
	busy := 0
	for _, w := range p.workers {
		if w.IsProcessing() {
			busy++
		}
	}
	return busy
}
