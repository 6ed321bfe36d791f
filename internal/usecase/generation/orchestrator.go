// Package generation runs query tasks: each submitted question spawns a
// worker that streams the backend's answer into an append-only chunk log,
// which consumers read through Attach. The registry bridges the submit
// and stream halves of the public protocol.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/cache"
	"github.com/talentdex/talentdex/internal/domain"
)

const (
	// DefaultRetention keeps terminal tasks readable long enough for one
	// slow client to finish.
	DefaultRetention = 10 * time.Minute

	janitorInterval = time.Minute
)

// SubmitRequest carries a validated query and its retrieved context into
// the orchestrator.
type SubmitRequest struct {
	Collection       string
	Question         string
	CacheKey         string // retrieval query key; also keys the answer cache
	Candidates       []domain.Candidate
	RankingAvailable bool
}

// Orchestrator owns the task registry and the generation workers.
type Orchestrator struct {
	gen       domain.Generator
	answers   *cache.Cache[string]
	retention time.Duration
	logger    *zap.Logger

	mu     sync.RWMutex
	tasks  map[string]*Task
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator and starts its janitor. Close must be called
// on shutdown.
func New(gen domain.Generator, answerTTL, retention time.Duration, logger *zap.Logger) *Orchestrator {
	if answerTTL <= 0 {
		answerTTL = time.Hour
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		gen:       gen,
		answers:   cache.New[string](answerTTL),
		retention: retention,
		logger:    logger,
		tasks:     make(map[string]*Task),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	o.wg.Add(1)
	go o.janitor()
	return o
}

// Close cancels in-flight generation and stops the janitor. Submits
// arriving after Close register an already-failed task.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Submit registers a task for the query and starts generation without
// blocking. A cached answer short-circuits into an already-completed task.
func (o *Orchestrator) Submit(req SubmitRequest) string {
	task := newTask(uuid.NewString())

	o.mu.Lock()
	closed := o.closed
	o.tasks[task.id] = task
	o.mu.Unlock()

	if closed {
		task.fail(fmt.Errorf("submit %q: %w", req.Collection, context.Canceled))
		return task.id
	}

	if answer, ok := o.answers.Get(req.CacheKey); ok {
		task.append(Chunk{Text: answer})
		task.complete()
		o.logger.Info("Query answered from cache",
			zap.String("task_id", task.id),
			zap.String("collection", req.Collection),
		)
		return task.id
	}

	o.wg.Add(1)
	go o.run(task, req)
	return task.id
}

// Attach returns a channel replaying the task's chunks from the beginning
// and then following new ones until the task is terminal or ctx is done.
// Concurrent attaches get independent cursors over the same log.
func (o *Orchestrator) Attach(ctx context.Context, taskID string) (<-chan Chunk, error) {
	o.mu.RLock()
	task, ok := o.tasks[taskID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task %q: %w", taskID, domain.ErrTaskNotFound)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		cursor := 0
		for {
			chunks, state, changed := task.next(cursor)
			for _, c := range chunks {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
			cursor += len(chunks)
			if state.terminal() {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// TaskState returns the current state of a task.
func (o *Orchestrator) TaskState(taskID string) (State, error) {
	o.mu.RLock()
	task, ok := o.tasks[taskID]
	o.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("task %q: %w", taskID, domain.ErrTaskNotFound)
	}
	return task.State(), nil
}

// run is the generation worker: one per submitted query. Backend errors
// fail only this task; they are surfaced to attached consumers as the
// sentinel chunk, never back through Submit.
func (o *Orchestrator) run(task *Task, req SubmitRequest) {
	defer o.wg.Done()

	stream, err := o.gen.Generate(o.baseCtx, systemPrompt(req.RankingAvailable), userPrompt(req.Question, req.Candidates))
	if err != nil {
		o.logger.Error("Generation request failed",
			zap.String("task_id", task.id),
			zap.String("collection", req.Collection),
			zap.Error(err),
		)
		task.fail(err)
		return
	}
	defer func() { _ = stream.Close() }()

	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.logger.Error("Generation stream failed",
				zap.String("task_id", task.id),
				zap.Error(err),
			)
			task.fail(err)
			return
		}
		if text != "" {
			task.append(Chunk{Text: text})
		}
	}

	task.complete()
	if answer := task.answer(); answer != "" {
		o.answers.Put(req.CacheKey, answer)
	}
	o.logger.Info("Generation completed", zap.String("task_id", task.id))
}

// janitor drops terminal tasks once their retention window elapses.
func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.baseCtx.Done():
			return
		case now := <-ticker.C:
			o.mu.Lock()
			for id, task := range o.tasks {
				if task.expired(now, o.retention) {
					delete(o.tasks, id)
				}
			}
			o.mu.Unlock()
		}
	}
}

// Answers exposes the answer cache. Test hook for clock injection.
func (o *Orchestrator) Answers() *cache.Cache[string] { return o.answers }
