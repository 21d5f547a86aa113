package postworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// PublishJob is one due post handed to the pool. Jobs with the same UserID
// always land on the same worker, so a user's backlog publishes in run-time
// order while different users proceed in parallel.
type PublishJob struct {
	UserID  string
	PostID  string
	Handler func(ctx context.Context) error
}

// PoolStats contains point-in-time metrics for the pool.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

// WorkerStats contains metrics for one worker.
type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// Pool is a fixed set of workers with per-worker queues and FNV pinning on
// the job's UserID.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id            int
	jobQueue      chan PublishJob
	ctx           context.Context
	cancel        context.CancelFunc
	jobsProcessed int64
	pool          *Pool
}

// NewPool creates a publish worker pool.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches all workers; they stop when ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan PublishJob, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w
		p.wg.Add(1)
		go w.run(&p.wg)
	}
	logrus.Infof("[POST_WORKER_POOL] Started with %d workers, queue size %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues a job on the user's pinned worker without blocking.
// Returns false when the queue is full or the pool is stopped; callers keep
// the post pending and retry on the next tick.
func (p *Pool) TryDispatch(job PublishJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}
	shard := p.shardForUser(job.UserID)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[POST_WORKER_POOL] Worker %d queue full, deferring post %s for user %s", shard, job.PostID, job.UserID)
	return false
}

// Stop drains and stops all workers.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[POST_WORKER_POOL] Stopping workers...")
		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}
		p.wg.Wait()
		logrus.Info("[POST_WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) shardForUser(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats returns point-in-time pool metrics.
func (p *Pool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	for _, w := range p.workers {
		if w == nil {
			continue // pool not started yet
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}
	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		}
	}
}

func (w *worker) process(job PublishJob) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[POST_WORKER_POOL] Worker %d panic on post %s: %v", w.id, job.PostID, r)
		}
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Warnf("[POST_WORKER_POOL] Worker %d: post %s failed", w.id, job.PostID)
	}
	atomic.AddInt64(&w.jobsProcessed, 1)
	atomic.AddInt64(&w.pool.totalProcessed, 1)
}
