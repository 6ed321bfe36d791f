package generation

import (
	"sync"
	"time"
)

// State is the lifecycle phase of a query task.
type State string

const (
	// StateQueued means generation has not produced output yet.
	StateQueued State = "queued"
	// StateStreaming means at least one chunk has been emitted.
	StateStreaming State = "streaming"
	// StateCompleted means the backend signaled end-of-output.
	StateCompleted State = "completed"
	// StateFailed means the backend errored; the chunk log ends with a
	// sentinel error chunk.
	StateFailed State = "failed"
)

func (s State) terminal() bool { return s == StateCompleted || s == StateFailed }

// Chunk is one unit of streamed output. A non-empty Err marks the sentinel
// error chunk terminating a failed task's stream; Text is empty then.
type Chunk struct {
	Text string
	Err  string
}

// Task holds the append-only output log of one query. Mutated only by the
// generation worker that owns it; read by attached consumers through
// cursors.
type Task struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	state      State
	chunks     []Chunk
	err        error
	finishedAt time.Time
	changed    chan struct{} // closed and replaced on every mutation
}

func newTask(id string) *Task {
	return &Task{
		id:        id,
		createdAt: time.Now(),
		state:     StateQueued,
		changed:   make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure cause for a failed task, nil otherwise.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// append adds a chunk and wakes waiting consumers. First content chunk
// moves the task from queued to streaming.
func (t *Task) append(c Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return
	}
	t.chunks = append(t.chunks, c)
	if t.state == StateQueued {
		t.state = StateStreaming
	}
	t.wake()
}

// complete marks the task finished.
func (t *Task) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return
	}
	t.state = StateCompleted
	t.finishedAt = time.Now()
	t.wake()
}

// fail marks the task failed and appends the sentinel error chunk so a
// partial answer is never presented as complete.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return
	}
	t.err = err
	t.chunks = append(t.chunks, Chunk{Err: err.Error()})
	t.state = StateFailed
	t.finishedAt = time.Now()
	t.wake()
}

// wake must be called with t.mu held.
func (t *Task) wake() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// next returns chunks appended at or after cursor, the current state, and
// a channel that closes on the next mutation. The returned slice aliases
// the append-only log and must be treated as read-only.
func (t *Task) next(cursor int) ([]Chunk, State, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks[cursor:], t.state, t.changed
}

// expired reports whether the task is terminal and older than retention.
func (t *Task) expired(now time.Time, retention time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.terminal() && now.Sub(t.finishedAt) > retention
}

// answer concatenates all content chunks. Used to populate the answer
// cache after a successful run.
func (t *Task) answer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b []byte
	for _, c := range t.chunks {
		b = append(b, c.Text...)
	}
	return string(b)
}
