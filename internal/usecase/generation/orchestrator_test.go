package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
)

// --- Mocks ---

// scriptedStream yields chunks in order, then the final error (io.EOF for a
// clean finish). An optional gate delays each Recv until released.
type scriptedStream struct {
	chunks []string
	final  error
	gate   chan struct{}
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	return "", s.final
}

func (s *scriptedStream) Close() error { return nil }

type mockGenerator struct {
	stream      *scriptedStream
	generateErr error
	calls       int
}

func (m *mockGenerator) Generate(_ context.Context, _, _ string) (domain.ChunkStream, error) {
	m.calls++
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return m.stream, nil
}

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func submitReq(key string) SubmitRequest {
	return SubmitRequest{
		Collection: "team",
		Question:   "who knows python?",
		CacheKey:   key,
	}
}

// --- Tests ---

func TestSubmitAndAttach_FullStream(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"Alice ", "knows ", "Python."},
		final:  io.EOF,
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	ch, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	chunks := drain(t, ch)
	var b strings.Builder
	for _, c := range chunks {
		if c.Err != "" {
			t.Fatalf("unexpected error chunk: %q", c.Err)
		}
		b.WriteString(c.Text)
	}
	if b.String() != "Alice knows Python." {
		t.Errorf("answer = %q", b.String())
	}

	state, err := o.TaskState(id)
	if err != nil {
		t.Fatalf("TaskState failed: %v", err)
	}
	if state != StateCompleted {
		t.Errorf("state = %s, want %s", state, StateCompleted)
	}
}

func TestAttach_AfterCompletionReplaysLog(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"done"},
		final:  io.EOF,
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	// Wait for the worker to finish.
	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := o.TaskState(id)
		if err != nil {
			t.Fatalf("TaskState failed: %v", err)
		}
		if state == StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A late consumer still gets the full log.
	ch, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 || chunks[0].Text != "done" {
		t.Errorf("late attach chunks = %+v", chunks)
	}
}

func TestAttach_ConcurrentConsumersGetIndependentCursors(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"a", "b", "c"},
		final:  io.EOF,
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	ch1, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	ch2, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	join := func(chunks []Chunk) string {
		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Text)
		}
		return b.String()
	}

	if got := join(drain(t, ch1)); got != "abc" {
		t.Errorf("consumer 1 got %q", got)
	}
	if got := join(drain(t, ch2)); got != "abc" {
		t.Errorf("consumer 2 got %q", got)
	}
}

func TestAttach_UnknownTask(t *testing.T) {
	o := New(&mockGenerator{}, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	_, err := o.Attach(context.Background(), "missing")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := o.TaskState("missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSubmit_GenerateFailureYieldsErrorChunk(t *testing.T) {
	gen := &mockGenerator{generateErr: errors.New("backend down")}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	ch, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	chunks := drain(t, ch)
	if len(chunks) == 0 {
		t.Fatal("expected a sentinel error chunk")
	}
	last := chunks[len(chunks)-1]
	if last.Err == "" {
		t.Errorf("last chunk is not an error: %+v", last)
	}

	state, err := o.TaskState(id)
	if err != nil {
		t.Fatalf("TaskState failed: %v", err)
	}
	if state != StateFailed {
		t.Errorf("state = %s, want %s", state, StateFailed)
	}
}

func TestSubmit_MidStreamFailure(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"partial "},
		final:  errors.New("connection reset"),
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	ch, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	chunks := drain(t, ch)
	if len(chunks) < 2 {
		t.Fatalf("expected text then error chunk, got %+v", chunks)
	}
	if chunks[0].Text != "partial " {
		t.Errorf("first chunk = %+v", chunks[0])
	}
	if chunks[len(chunks)-1].Err == "" {
		t.Error("stream did not end with the sentinel error chunk")
	}
}

func TestSubmit_CachedAnswerShortCircuits(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"fresh ", "answer"},
		final:  io.EOF,
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	first := o.Submit(submitReq("shared-key"))
	ch, err := o.Attach(context.Background(), first)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	drain(t, ch)

	// The worker writes the answer cache just after marking the task
	// terminal; wait for it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := o.Answers().Get("shared-key"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("answer never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Second submit with the same key answers from cache without a new
	// generation call.
	second := o.Submit(submitReq("shared-key"))
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}

	state, err := o.TaskState(second)
	if err != nil {
		t.Fatalf("TaskState failed: %v", err)
	}
	if state != StateCompleted {
		t.Errorf("cached task state = %s, want %s", state, StateCompleted)
	}

	ch, err = o.Attach(context.Background(), second)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 || chunks[0].Text != "fresh answer" {
		t.Errorf("cached chunks = %+v, want the concatenated answer", chunks)
	}
}

func TestAttach_ConsumerDisconnectDoesNotCorruptLog(t *testing.T) {
	gate := make(chan struct{})
	gen := &mockGenerator{stream: &scriptedStream{
		chunks: []string{"a", "b"},
		final:  io.EOF,
		gate:   gate,
	}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	defer o.Close()

	id := o.Submit(submitReq("k1"))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := o.Attach(ctx, id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// Let the first chunk through, then drop the consumer.
	gate <- struct{}{}
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}
	cancel()

	// Generation keeps running unread.
	gate <- struct{}{}
	close(gate)

	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := o.TaskState(id)
		if err != nil {
			t.Fatalf("TaskState failed: %v", err)
		}
		if state == StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never completed after consumer disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A fresh consumer reads the complete log.
	ch, err = o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 2 {
		t.Errorf("expected full 2-chunk log, got %+v", chunks)
	}
}

func TestUserPrompt_IncludesCandidates(t *testing.T) {
	candidates := []domain.Candidate{
		{DocumentID: "py", Rank: 1, HasRanking: true, FusedScore: 0.9,
			Keywords: []string{"python", "django"}, Excerpt: "python developer"},
		{DocumentID: "jv", FusedScore: 0.3, Excerpt: "java engineer"},
	}

	prompt := userPrompt("who fits?", candidates)

	for _, want := range []string{"py", "jv", "python developer", "java engineer", "who fits?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestUserPrompt_NoCandidates(t *testing.T) {
	if got := userPrompt("plain question", nil); got != "plain question" {
		t.Errorf("prompt = %q, want the bare question", got)
	}
}

func TestSystemPrompt_RankingNote(t *testing.T) {
	with := systemPrompt(true)
	without := systemPrompt(false)
	if with == without {
		t.Error("ranking availability must change the system prompt")
	}
	if !strings.Contains(without, "No ranking information") {
		t.Errorf("prompt without ranking = %q", without)
	}
}

func TestSubmit_AfterCloseRegistersFailedTask(t *testing.T) {
	gen := &mockGenerator{stream: &scriptedStream{chunks: []string{"x"}}}
	o := New(gen, time.Hour, time.Minute, zap.NewNop())
	o.Close()

	id := o.Submit(submitReq("k-closed"))

	state, err := o.TaskState(id)
	if err != nil {
		t.Fatalf("TaskState failed: %v", err)
	}
	if state != StateFailed {
		t.Fatalf("state = %s, want %s", state, StateFailed)
	}

	ch, err := o.Attach(context.Background(), id)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 1 || chunks[0].Err == "" {
		t.Fatalf("chunks = %+v, want a single error chunk", chunks)
	}
	if gen.calls != 0 {
		t.Errorf("generator invoked %d times, want 0", gen.calls)
	}
}
