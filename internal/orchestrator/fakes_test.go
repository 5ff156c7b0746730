package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/internal/workflow"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// memStore is an in-memory store.Store with the same terminal and version guards as Postgres.
type memStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*models.Task
	history []*models.HistoryRecord
	// progress records every progress value written, in order.
	progress   []int
	failGet    error
	failCreate error
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{tasks: map[uuid.UUID]*models.Task{}}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) CreateTask(_ context.Context, toolType models.ToolType, input models.Input) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	now := time.Now()
	t := &models.Task{
		ID:        uuid.New(),
		ToolType:  toolType,
		Status:    models.TaskStatusPending,
		Input:     input,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	c := *t
	return &c, nil
}

func (s *memStore) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *memStore) task(id uuid.UUID) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.tasks[id]
	return &c
}

func (s *memStore) apply(id uuid.UUID, expected int64, opts []store.TaskUpdateOption) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.IsTerminal() {
		return nil, store.ErrTerminalState
	}
	if expected != 0 && t.Version != expected {
		return nil, store.ErrVersionConflict
	}

	u := store.ResolveUpdate(opts...)
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Output != nil {
		t.Output = u.Output
	}
	if u.Error != nil {
		t.Error = u.Error
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
		s.progress = append(s.progress, *u.Progress)
	}
	if u.APIRequest != nil {
		t.APIRequest = u.APIRequest
	}
	if u.Prompt != nil {
		t.Prompt = u.Prompt
	}
	t.Version++
	t.UpdatedAt = time.Now()
	c := *t
	return &c, nil
}

func (s *memStore) UpdateTask(_ context.Context, id uuid.UUID, opts ...store.TaskUpdateOption) (*models.Task, error) {
	return s.apply(id, 0, opts)
}

func (s *memStore) CompareAndSwapTask(_ context.Context, id uuid.UUID, expected int64, opts ...store.TaskUpdateOption) (*models.Task, error) {
	return s.apply(id, expected, opts)
}

func (s *memStore) ListStalePending(context.Context, time.Time, int) ([]*models.Task, error) {
	return nil, nil
}

func (s *memStore) IncrementAttempts(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	t.Attempts++
	c := *t
	return &c, nil
}

func (s *memStore) AppendHistory(_ context.Context, taskID uuid.UUID, toolType models.ToolType, input models.Input, output models.Output) (*models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.TaskID == taskID {
			return nil, store.ErrDuplicateKey
		}
	}
	rec := &models.HistoryRecord{ID: uuid.New(), TaskID: taskID, ToolType: toolType, Input: input, Output: output, CreatedAt: time.Now()}
	s.history = append(s.history, rec)
	return rec, nil
}

func (s *memStore) GetHistory(context.Context, uuid.UUID) (*models.HistoryRecord, error) {
	return nil, store.ErrNotFound
}

func (s *memStore) ListHistory(context.Context, store.HistoryFilter) ([]*models.HistoryRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history, len(s.history), nil
}

func (s *memStore) DeleteHistory(context.Context, uuid.UUID) error { return nil }

func (s *memStore) historyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// stubWorkflow is a Workflow whose stages are Func fields.
type stubWorkflow struct {
	toolType   models.ToolType
	ValidateFn func(*workflow.Request) (*workflow.Accepted, error)
	PrepareFn  func(context.Context, *models.Task) (*workflow.Prepared, error)
	SubmitFn   func(context.Context, *workflow.Prepared) (*workflow.Submission, error)
	PollFn     func(context.Context, *workflow.Submission) (*workflow.Completion, error)
	MaterialFn func(context.Context, *workflow.Completion) (models.Output, error)
}

func newStubWorkflow(tt models.ToolType) *stubWorkflow {
	return &stubWorkflow{
		toolType: tt,
		ValidateFn: func(r *workflow.Request) (*workflow.Accepted, error) {
			return &workflow.Accepted{Input: map[string]any{"prompt": r.Value("prompt")}}, nil
		},
		PrepareFn: func(_ context.Context, t *models.Task) (*workflow.Prepared, error) {
			return &workflow.Prepared{Task: t, Prompt: t.Input.String("prompt"), APIRequest: map[string]any{"stage": "prepare"}}, nil
		},
		SubmitFn: func(_ context.Context, p *workflow.Prepared) (*workflow.Submission, error) {
			return &workflow.Submission{Prepared: p, APIRequest: map[string]any{"stage": "submit"}, JobID: "job-1"}, nil
		},
		PollFn: func(_ context.Context, s *workflow.Submission) (*workflow.Completion, error) {
			return &workflow.Completion{Submission: s, RemoteURL: "https://cdn.example.com/out.png"}, nil
		},
		MaterialFn: func(_ context.Context, c *workflow.Completion) (models.Output, error) {
			return models.Output{"url": c.RemoteURL}, nil
		},
	}
}

func (w *stubWorkflow) ToolType() models.ToolType { return w.toolType }
func (w *stubWorkflow) Validate(r *workflow.Request) (*workflow.Accepted, error) {
	return w.ValidateFn(r)
}
func (w *stubWorkflow) Prepare(ctx context.Context, t *models.Task) (*workflow.Prepared, error) {
	return w.PrepareFn(ctx, t)
}
func (w *stubWorkflow) Submit(ctx context.Context, p *workflow.Prepared) (*workflow.Submission, error) {
	return w.SubmitFn(ctx, p)
}
func (w *stubWorkflow) Poll(ctx context.Context, s *workflow.Submission) (*workflow.Completion, error) {
	return w.PollFn(ctx, s)
}
func (w *stubWorkflow) Materialize(ctx context.Context, c *workflow.Completion) (models.Output, error) {
	return w.MaterialFn(ctx, c)
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

type fakeTracker struct {
	tracked, stopped int
}

func (f *fakeTracker) Track(context.Context, uuid.UUID) func() {
	f.tracked++
	return func() { f.stopped++ }
}

func textFile(name, body string) workflow.File {
	return workflow.File{Filename: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}
