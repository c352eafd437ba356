package pipeline

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/constants"
	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/entity"
	"github.com/photosmith/photosmith/internal/repository"
	"github.com/photosmith/photosmith/internal/retry"
)

type fakeQueue struct {
	mu sync.Mutex

	pending    []*entity.QueueItem
	claims     []repository.ClaimParams
	completed  []uuid.UUID
	failed     map[uuid.UUID]string
	returned   map[uuid.UUID]time.Duration
	heartbeats int
	reverted   int
}

func newFakeQueue(items ...*entity.QueueItem) *fakeQueue {
	return &fakeQueue{
		pending:  items,
		failed:   make(map[uuid.UUID]string),
		returned: make(map[uuid.UUID]time.Duration),
	}
}

func (q *fakeQueue) Enqueue(ctx context.Context, photoID uuid.UUID, priority, maxAttempts int) (bool, constants.QueueStatus, error) {
	return true, constants.QueueStatusPending, nil
}

// Claim hands out each pending item exactly once, honoring BatchSize
// and the priority DESC, insertion-order ASC ordering of the real
// repository's claim query.
func (q *fakeQueue) Claim(ctx context.Context, p repository.ClaimParams) ([]*entity.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims = append(q.claims, p)

	sort.SliceStable(q.pending, func(i, j int) bool {
		return q.pending[i].Priority > q.pending[j].Priority
	})
	n := p.BatchSize
	if n > len(q.pending) {
		n = len(q.pending)
	}
	items := q.pending[:n]
	q.pending = q.pending[n:]
	for _, it := range items {
		it.Attempts++
	}
	return items, nil
}

func (q *fakeQueue) Heartbeat(ctx context.Context, itemID uuid.UUID, lease time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats++
	return nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, itemID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, itemID)
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, itemID uuid.UUID, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[itemID] = lastError
	return nil
}

func (q *fakeQueue) ReturnToPending(ctx context.Context, itemID uuid.UUID, lastError string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.returned[itemID] = delay
	return nil
}

func (q *fakeQueue) RevertInFlight(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reverted++
	return 2, nil
}

func (q *fakeQueue) CountsByStatus(ctx context.Context) (entity.QueueCounts, error) {
	return entity.QueueCounts{}, nil
}

type scriptedProcessor struct {
	mu      sync.Mutex
	results map[uuid.UUID]error
	calls   map[uuid.UUID]int
	block   chan struct{}
}

func (p *scriptedProcessor) ProcessPhoto(ctx context.Context, photoID uuid.UUID, progress ProgressFunc) error {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[uuid.UUID]int)
	}
	p.calls[photoID]++
	err := p.results[photoID]
	block := p.block
	p.mu.Unlock()

	if progress != nil {
		progress(ctx)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func queueItem(photoID uuid.UUID, attempts int) *entity.QueueItem {
	return &entity.QueueItem{
		ID:          uuid.New(),
		PhotoID:     photoID,
		Attempts:    attempts,
		MaxAttempts: 3,
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, StorageMaxAttempts: 5, BackoffBase: 30 * time.Second, BackoffMax: 15 * time.Minute}
}

func TestController_SuccessMarksCompleted(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	item := queueItem(photoID, 0)
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{}}
	c := NewController(queue, proc, testPolicy(), nil, WithWorkers(2), WithBatchSize(4))

	c.dispatch(context.Background())
	c.wg.Wait()

	if len(queue.completed) != 1 || queue.completed[0] != item.ID {
		t.Fatalf("expected item %v completed, got %v", item.ID, queue.completed)
	}
	if queue.heartbeats == 0 {
		t.Error("expected at least one heartbeat")
	}
	if c.InFlight() != 0 {
		t.Errorf("in-flight should settle to 0, got %d", c.InFlight())
	}
}

func TestController_TransientReturnsToPendingWithBackoff(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	item := queueItem(photoID, 0) // claim bumps to 1
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{
		photoID: common.Transientf(nil, "provider 503"),
	}}
	c := NewController(queue, proc, testPolicy(), nil)

	c.dispatch(context.Background())
	c.wg.Wait()

	delay, ok := queue.returned[item.ID]
	if !ok {
		t.Fatalf("expected item returned to pending, got failed=%v completed=%v", queue.failed, queue.completed)
	}
	if delay != 30*time.Second {
		t.Errorf("first retry backoff = %v, want 30s", delay)
	}
}

func TestController_TransientExhaustedMarksFailed(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	item := queueItem(photoID, 2) // claim bumps to 3, the budget
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{
		photoID: common.Transientf(nil, "provider 503"),
	}}
	c := NewController(queue, proc, testPolicy(), nil)

	c.dispatch(context.Background())
	c.wg.Wait()

	if _, ok := queue.failed[item.ID]; !ok {
		t.Fatalf("expected terminal failure after attempt budget, got returned=%v", queue.returned)
	}
	if len(queue.returned) != 0 {
		t.Error("exhausted item must not return to pending")
	}
}

func TestController_RaisedItemBudgetOutlivesPolicyDefault(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	// An operator raised this item's budget well past the policy
	// default of 3. Claim bumps attempts to 5.
	item := &entity.QueueItem{
		ID:          uuid.New(),
		PhotoID:     photoID,
		Attempts:    4,
		MaxAttempts: 10,
	}
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{
		photoID: common.Transientf(nil, "provider 503"),
	}}
	c := NewController(queue, proc, testPolicy(), nil)

	c.dispatch(context.Background())
	c.wg.Wait()

	delay, ok := queue.returned[item.ID]
	if !ok {
		t.Fatalf("item with max_attempts=10 must keep retrying at attempt 5, got failed=%v", queue.failed)
	}
	if delay != 8*time.Minute {
		t.Errorf("fifth retry backoff = %v, want 8m", delay)
	}
}

func TestController_LoweredItemBudgetFailsEarly(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	item := &entity.QueueItem{
		ID:          uuid.New(),
		PhotoID:     photoID,
		Attempts:    1, // claim bumps to 2, the item's own budget
		MaxAttempts: 2,
	}
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{
		photoID: common.Transientf(nil, "provider 503"),
	}}
	c := NewController(queue, proc, testPolicy(), nil)

	c.dispatch(context.Background())
	c.wg.Wait()

	if _, ok := queue.failed[item.ID]; !ok {
		t.Fatalf("item with max_attempts=2 must fail at attempt 2, got returned=%v", queue.returned)
	}
}

func TestController_PermanentMarksFailed(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	item := queueItem(photoID, 0)
	queue := newFakeQueue(item)
	proc := &scriptedProcessor{results: map[uuid.UUID]error{
		photoID: common.NewProcessingError(common.KindImageDecode, "decode source image", nil),
	}}
	c := NewController(queue, proc, testPolicy(), nil)

	c.dispatch(context.Background())
	c.wg.Wait()

	if _, ok := queue.failed[item.ID]; !ok {
		t.Fatal("permanent error must mark the item failed")
	}
}

func TestController_ClaimsHigherPriorityFirst(t *testing.T) {
	low := queueItem(uuid.New(), 0)
	high := queueItem(uuid.New(), 0)
	high.Priority = 5
	queue := newFakeQueue(low, high) // enqueued low first
	proc := &scriptedProcessor{results: map[uuid.UUID]error{}}
	c := NewController(queue, proc, testPolicy(), nil, WithWorkers(1), WithBatchSize(1))

	ctx := context.Background()
	c.dispatch(ctx)
	c.wg.Wait()
	c.dispatch(ctx)
	c.wg.Wait()

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.completed) != 2 {
		t.Fatalf("completed %d items, want 2", len(queue.completed))
	}
	if queue.completed[0] != high.ID {
		t.Errorf("first completion = %v, want the priority-5 item %v", queue.completed[0], high.ID)
	}
	if queue.completed[1] != low.ID {
		t.Errorf("second completion = %v, want the priority-0 item %v", queue.completed[1], low.ID)
	}
}

func TestController_NoDoubleDispatch(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	queue := newFakeQueue(queueItem(photoID, 0))
	proc := &scriptedProcessor{results: map[uuid.UUID]error{}}
	c := NewController(queue, proc, testPolicy(), nil, WithWorkers(4))

	ctx := context.Background()
	c.dispatch(ctx)
	c.dispatch(ctx)
	c.wg.Wait()

	if proc.calls[photoID] != 1 {
		t.Errorf("photo processed %d times, want 1", proc.calls[photoID])
	}
}

func TestController_ClaimBoundedByFreeWorkers(t *testing.T) {
	var items []*entity.QueueItem
	for i := 0; i < 6; i++ {
		items = append(items, queueItem(uuid.New(), 0))
	}
	queue := newFakeQueue(items...)
	block := make(chan struct{})
	proc := &scriptedProcessor{results: map[uuid.UUID]error{}, block: block}
	c := NewController(queue, proc, testPolicy(), nil, WithWorkers(2), WithBatchSize(8))

	ctx := context.Background()
	c.dispatch(ctx)

	// Both workers busy; a second dispatch must not claim anything.
	deadline := time.After(time.Second)
	for c.InFlight() != 2 {
		select {
		case <-deadline:
			t.Fatalf("in-flight = %d, want 2", c.InFlight())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	c.dispatch(ctx)

	queue.mu.Lock()
	claims := len(queue.claims)
	first := queue.claims[0].BatchSize
	queue.mu.Unlock()
	if claims != 1 {
		t.Errorf("claims issued = %d, want 1 (no free workers)", claims)
	}
	if first != 2 {
		t.Errorf("claim batch size = %d, want 2 (worker cap)", first)
	}

	close(block)
	c.wg.Wait()
}

func TestController_CancelBatchRevertsAndPausesDispatch(t *testing.T) {
	photoID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	queue := newFakeQueue(queueItem(photoID, 0))
	block := make(chan struct{})
	proc := &scriptedProcessor{results: map[uuid.UUID]error{}, block: block}
	c := NewController(queue, proc, testPolicy(), nil, WithWorkers(2))

	ctx := context.Background()
	c.dispatch(ctx)

	deadline := time.After(time.Second)
	for c.InFlight() != 1 {
		select {
		case <-deadline:
			t.Fatalf("in-flight = %d, want 1", c.InFlight())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	reverted, err := c.CancelBatch(ctx)
	if err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}
	if reverted != 2 {
		t.Errorf("reverted = %d, want 2 (from queue)", reverted)
	}
	if queue.reverted != 1 {
		t.Errorf("RevertInFlight called %d times, want 1", queue.reverted)
	}
	// Cancelled run must not reach a terminal queue state on its own.
	queue.mu.Lock()
	terminal := len(queue.completed) + len(queue.failed)
	queue.mu.Unlock()
	if terminal != 0 {
		t.Errorf("cancelled run reached terminal state: completed=%v failed=%v", queue.completed, queue.failed)
	}

	// Dispatch stays paused until Resume.
	queue.mu.Lock()
	queue.pending = []*entity.QueueItem{queueItem(uuid.New(), 0)}
	claimsBefore := len(queue.claims)
	queue.mu.Unlock()

	c.dispatch(ctx)
	queue.mu.Lock()
	claimsPaused := len(queue.claims)
	queue.mu.Unlock()
	if claimsPaused != claimsBefore {
		t.Error("paused controller must not claim")
	}

	c.Resume()
	c.dispatch(ctx)
	close(block)
	c.wg.Wait()
	queue.mu.Lock()
	claimsResumed := len(queue.claims)
	queue.mu.Unlock()
	if claimsResumed != claimsBefore+1 {
		t.Error("resumed controller must claim again")
	}
}
