package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/algomatic/backend/internal/pkg/cache"
)

const (
	// Redis key layout. Job bodies are global, queue structures per queue.
	JobKeyPrefix   = "job:"
	queueKeyPrefix = "queue:"

	DefaultAttempts = 1
	JobTTL          = 24 * time.Hour // Jobs expire after 24 hours

	defaultPromoteInterval = time.Second
)

// ProcessorFunc executes one job attempt. Returning an error (or overrunning
// the job timeout) counts as a failed attempt and triggers retry/backoff.
type ProcessorFunc func(ctx context.Context, job *JobContext) error

// JobContext is the handle a processor gets. It exposes the payload and a
// progress reporter; all other job state stays owned by the queue.
type JobContext struct {
	job   *Job
	queue *Queue

	mu      sync.Mutex
	settled bool
}

func (jc *JobContext) ID() string { return jc.job.ID }

func (jc *JobContext) Kind() string { return jc.job.Kind }

func (jc *JobContext) Payload() map[string]interface{} { return jc.job.Payload }

func (jc *JobContext) AttemptsMade() int { return jc.job.AttemptsMade }

// Progress records fractional completion (0..100) for observability. It has
// no effect on the job state machine. After the attempt is settled (a timed
// out processor may still be running) it is a no-op.
func (jc *JobContext) Progress(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if jc.settled {
		return
	}
	jc.job.Progress = pct
	if jc.queue != nil {
		jc.queue.updateJob(context.Background(), jc.job)
	}
}

// settle cuts the processor off from the job once the attempt outcome is
// decided, so the queue can advance the state machine without racing a
// straggling processor goroutine.
func (jc *JobContext) settle() {
	jc.mu.Lock()
	jc.settled = true
	jc.mu.Unlock()
}

// Metrics is one queue's counter snapshot.
type Metrics struct {
	Name      string `json:"name"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// Queue manages background jobs for one named queue using Redis.
type Queue struct {
	name       string
	client     *redis.Client
	bus        *EventBus
	workers    int
	workerPool chan struct{}

	procMu     sync.RWMutex
	processors map[string]ProcessorFunc

	promoteInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	paused  bool
}

// NewQueue creates a job queue with the given worker-pool bound.
func NewQueue(name string, workers int, bus *EventBus) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	if bus == nil {
		bus = NewEventBus()
	}

	return &Queue{
		name:            name,
		client:          cache.GetClient(),
		bus:             bus,
		workers:         workers,
		workerPool:      make(chan struct{}, workers),
		processors:      make(map[string]ProcessorFunc),
		promoteInterval: defaultPromoteInterval,
		stopCh:          make(chan struct{}),
	}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) waitKey() string    { return queueKeyPrefix + q.name + ":wait" }
func (q *Queue) activeKey() string  { return queueKeyPrefix + q.name + ":active" }
func (q *Queue) delayedKey() string { return queueKeyPrefix + q.name + ":delayed" }
func (q *Queue) statsKey() string   { return queueKeyPrefix + q.name + ":stats" }

// Register binds a processor to a job kind on this queue.
func (q *Queue) Register(kind string, fn ProcessorFunc) {
	q.procMu.Lock()
	defer q.procMu.Unlock()
	q.processors[kind] = fn
}

// Start starts the queue workers, the delayed-job promoter and the stuck
// sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue:%s] Starting %d workers", q.name, q.workers)

	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.delayedPromoter(q.promoteInterval)

	// Recovers jobs stuck in the active list after a crash.
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, time.Minute)
}

// Stop stops the queue workers and waits for them to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Infof("[JobQueue:%s] Stopping workers...", q.name)
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()

	// Drain the worker pool so a later Start refills it cleanly.
	for {
		select {
		case <-q.workerPool:
		default:
			log.Infof("[JobQueue:%s] All workers stopped", q.name)
			return
		}
	}
}

// Pause stops dequeuing new jobs. Already active jobs finish normally.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.bus.Publish(QueueEvent{Type: EventQueuePaused, Queue: q.name, Message: "queue paused"})
}

// Resume re-enables dequeuing.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.bus.Publish(QueueEvent{Type: EventQueueResumed, Queue: q.name, Message: "queue resumed"})
}

func (q *Queue) isPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Enqueue adds a new job. With a positive Delay the job parks in the delayed
// set until its activation time; otherwise it is immediately runnable.
func (q *Queue) Enqueue(kind string, payload map[string]interface{}, opts Options) (*Job, error) {
	ctx := context.Background()

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	now := time.Now()
	job := &Job{
		ID:              uuid.New().String(),
		Queue:           q.name,
		Kind:            kind,
		State:           StateWaiting,
		Payload:         payload,
		AttemptsAllowed: attempts,
		Backoff:         opts.Backoff,
		DelayMs:         opts.Delay.Milliseconds(),
		TimeoutMs:       opts.Timeout.Milliseconds(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	if opts.Delay > 0 {
		readyAt := now.Add(opts.Delay).UnixMilli()
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: job.ID})
	} else {
		pipe.LPush(ctx, q.waitKey(), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue:%s] Enqueued job %s (kind=%s, delay=%s)", q.name, job.ID, kind, opts.Delay)
	return job, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue:%s] Worker %d started", q.name, id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue:%s] Worker %d stopping", q.name, id)
			return
		default:
			if q.isPaused() {
				time.Sleep(time.Second)
				continue
			}

			// Acquire worker slot
			<-q.workerPool

			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue:%s] Worker %d: Error dequeuing job: %v", q.name, id, err)
					time.Sleep(time.Second)
				}
				q.workerPool <- struct{}{}
				continue
			}

			if job != nil {
				q.processJob(ctx, job)
			}

			// Release worker slot
			q.workerPool <- struct{}{}
		}
	}
}

// dequeueJob moves the next runnable job id from wait to active atomically
// and loads its body.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, q.waitKey(), q.activeKey(), time.Second).Result()
	if err != nil {
		return nil, err
	}

	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		// Job data expired or missing, remove the stray active entry
		q.client.LRem(ctx, q.activeKey(), 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s", jobID)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.client.LRem(ctx, q.activeKey(), 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// processJob runs a single attempt and advances the job state machine.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkActive()
	q.updateJob(ctx, job)
	log.Infof("[JobQueue:%s] Processing job %s (kind=%s, attempt %d/%d)",
		q.name, job.ID, job.Kind, job.AttemptsMade, job.AttemptsAllowed)

	err := q.runProcessor(job)

	if err != nil {
		log.Errorf("[JobQueue:%s] Job %s attempt %d failed: %v", q.name, job.ID, job.AttemptsMade, err)
		job.MarkFailed(err.Error())

		if job.Retryable() {
			delay := job.NextDelay()
			job.MarkWaiting()
			q.updateJob(ctx, job)
			q.scheduleRetry(ctx, job, delay)
		} else {
			log.Errorf("[JobQueue:%s] Job %s permanently failed after %d attempts", q.name, job.ID, job.AttemptsMade)
			q.updateJob(ctx, job)
			q.bumpStat(ctx, StateFailed)
			q.bus.Publish(QueueEvent{
				Type:    EventJobFailed,
				Queue:   q.name,
				JobID:   job.ID,
				Message: job.ErrorMsg,
				Data:    map[string]interface{}{"kind": job.Kind, "attemptsMade": job.AttemptsMade},
			})
		}
	} else {
		job.MarkCompleted()
		q.bumpStat(ctx, StateCompleted)
		q.bus.Publish(QueueEvent{
			Type:    EventJobCompleted,
			Queue:   q.name,
			JobID:   job.ID,
			Message: "job completed",
			Data:    map[string]interface{}{"kind": job.Kind},
		})
		// Completed jobs are removed from Redis entirely
		if err := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); err != nil {
			log.Errorf("[JobQueue:%s] Failed to remove completed job %s: %v", q.name, job.ID, err)
		}
	}

	if err := q.client.LRem(ctx, q.activeKey(), 1, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue:%s] Failed to remove job %s from active list: %v", q.name, job.ID, err)
	}
}

// runProcessor executes the bound processor under the job's timeout.
func (q *Queue) runProcessor(job *Job) error {
	q.procMu.RLock()
	fn, ok := q.processors[job.Kind]
	q.procMu.RUnlock()
	if !ok {
		return fmt.Errorf("no processor registered for kind %s", job.Kind)
	}

	ctx := context.Background()
	if job.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	jc := &JobContext{job: job, queue: q}
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(ctx, jc)
	}()

	select {
	case err := <-errCh:
		jc.settle()
		return err
	case <-ctx.Done():
		// Timed out. The attempt counts as failed; the processor goroutine
		// is expected to observe ctx and bail out, and its job handle is
		// settled so late Progress calls cannot touch the job.
		jc.settle()
		return fmt.Errorf("job timed out after %dms: %w", job.TimeoutMs, ctx.Err())
	}
}

// scheduleRetry parks the job in the delayed set until its backoff elapses.
func (q *Queue) scheduleRetry(ctx context.Context, job *Job, delay time.Duration) {
	readyAt := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: job.ID}).Err(); err != nil {
		log.Errorf("[JobQueue:%s] Failed to schedule retry for job %s: %v", q.name, job.ID, err)
		return
	}
	log.Infof("[JobQueue:%s] Retrying job %s in %s (attempt %d/%d done)",
		q.name, job.ID, delay, job.AttemptsMade, job.AttemptsAllowed)
}

// delayedPromoter periodically moves due jobs from the delayed set into the
// wait list.
func (q *Queue) delayedPromoter(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
			if err != nil {
				log.Errorf("[JobQueue:%s] Promoter error: %v", q.name, err)
				continue
			}
			for _, id := range ids {
				removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
				if err != nil || removed == 0 {
					continue
				}
				if err := q.client.LPush(ctx, q.waitKey(), id).Err(); err != nil {
					log.Errorf("[JobQueue:%s] Failed to promote job %s: %v", q.name, id, err)
				}
			}
		}
	}
}

// stuckSweeper periodically scans the active list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, q.activeKey(), 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue:%s] Sweeper LRange error: %v", q.name, err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
				if err != nil {
					// Job data missing; remove from active list
					if err != redis.Nil {
						log.Errorf("[JobQueue:%s] Sweeper Get error for %s: %v", q.name, id, err)
					}
					_ = q.client.LRem(ctx, q.activeKey(), 1, id).Err()
					continue
				}
				var job Job
				if uerr := json.Unmarshal([]byte(data), &job); uerr != nil {
					log.Errorf("[JobQueue:%s] Sweeper unmarshal error for %s: %v", q.name, id, uerr)
					_ = q.client.LRem(ctx, q.activeKey(), 1, id).Err()
					continue
				}
				if job.State != StateActive {
					// Clean up stray entry
					_ = q.client.LRem(ctx, q.activeKey(), 1, id).Err()
					continue
				}
				started := job.StartedAt
				if started == nil || started.IsZero() {
					tmp := job.UpdatedAt
					if tmp.IsZero() {
						tmp = job.CreatedAt
					}
					started = &tmp
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[JobQueue:%s] Recovering stuck job %s (kind=%s), age=%s", q.name, job.ID, job.Kind, now.Sub(*started))
					job.MarkWaiting()
					job.ErrorMsg = "recovered by sweeper"
					q.updateJob(ctx, &job)
					_ = q.client.LRem(ctx, q.activeKey(), 1, id).Err()
					_ = q.client.RPush(ctx, q.waitKey(), id).Err()
					q.bus.Publish(QueueEvent{
						Type:    EventJobStuck,
						Queue:   q.name,
						JobID:   job.ID,
						Message: "stuck job requeued",
					})
				}
			}
		}
	}
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue:%s] Failed to marshal job %s: %v", q.name, job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue:%s] Failed to update job %s: %v", q.name, job.ID, err)
	}
}

func (q *Queue) bumpStat(ctx context.Context, state State) {
	if err := q.client.HIncrBy(ctx, q.statsKey(), string(state), 1).Err(); err != nil {
		log.Errorf("[JobQueue:%s] Failed to update stats: %v", q.name, err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetMetrics computes this queue's counter snapshot on demand. Waiting
// includes delayed jobs that have not reached their activation time yet.
func (q *Queue) GetMetrics(ctx context.Context) (Metrics, error) {
	m := Metrics{Name: q.name}

	waiting, err := q.client.LLen(ctx, q.waitKey()).Result()
	if err != nil {
		return m, err
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return m, err
	}
	active, err := q.client.LLen(ctx, q.activeKey()).Result()
	if err != nil {
		return m, err
	}
	stats, err := q.client.HGetAll(ctx, q.statsKey()).Result()
	if err != nil {
		return m, err
	}

	m.Waiting = waiting + delayed
	m.Active = active
	m.Completed = parseCount(stats[string(StateCompleted)])
	m.Failed = parseCount(stats[string(StateFailed)])
	return m, nil
}

func parseCount(value string) int64 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
