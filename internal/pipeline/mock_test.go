package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/store"
)

// --- Resolver fake ---

// fakeResolver answers from a fixed table. Unknown addresses are not found.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string]model.Outcome
	calls   map[string]int
}

func newFakeResolver(answers map[string]model.Outcome) *fakeResolver {
	return &fakeResolver{answers: answers, calls: make(map[string]int)}
}

func (f *fakeResolver) Resolve(ctx context.Context, address string) (model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if address == "" {
		return model.EmptyAddress(), nil
	}
	if out, ok := f.answers[address]; ok {
		return out, nil
	}
	return model.Failure(model.StatusNotFound, ""), nil
}

func (f *fakeResolver) set(address string, out model.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[address] = out
}

func (f *fakeResolver) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// --- Ledger mock ---

type mockLedger struct {
	mock.Mock
}

var _ store.Store = (*mockLedger)(nil)

func (m *mockLedger) StartRun(ctx context.Context, stage string, params map[string]any) (*model.Run, error) {
	args := m.Called(ctx, stage, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockLedger) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	args := m.Called(ctx, runID, status, errMsg)
	return args.Error(0)
}

func (m *mockLedger) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockLedger) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockLedger) RecordChunk(ctx context.Context, ev model.ChunkEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockLedger) ListChunkEvents(ctx context.Context, runID string) ([]model.ChunkEvent, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChunkEvent), args.Error(1)
}

func (m *mockLedger) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockLedger) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newRun(id, stage string) *model.Run {
	return &model.Run{ID: id, Stage: stage, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
}
