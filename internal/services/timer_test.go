package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/repository"
)

// ─── Fakes ───

type memStore struct {
	mu       sync.Mutex
	items    map[models.ItemRef]*models.TrackableItem
	sessions []*models.TimerSession
	nextID   int64

	hideOpen bool  // FindOpenSession misses open rows, as a racing reader would
	lockErr  error // returned by Lock
}

func newMemStore() *memStore {
	return &memStore{items: make(map[models.ItemRef]*models.TrackableItem)}
}

func (m *memStore) addTask(id, owner int64, status models.Status) models.ItemRef {
	ref := models.ItemRef{Kind: models.KindTask, ID: id}
	m.items[ref] = &models.TrackableItem{Ref: ref, TaskID: id, OwnerUserID: owner, Title: fmt.Sprintf("task %d", id), Status: status}
	return ref
}

func (m *memStore) addSubTask(id, taskID, owner int64, status models.Status) models.ItemRef {
	ref := models.ItemRef{Kind: models.KindSubTask, ID: id}
	m.items[ref] = &models.TrackableItem{Ref: ref, TaskID: taskID, OwnerUserID: owner, Title: fmt.Sprintf("sub-task %d", id), Status: status}
	return ref
}

func (m *memStore) status(ref models.ItemRef) models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[ref].Status
}

func (m *memStore) sessionsFor(ref models.ItemRef) []models.TimerSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TimerSession
	for _, s := range m.sessions {
		if s.Ref() == ref {
			out = append(out, *s)
		}
	}
	return out
}

func (m *memStore) Get(_ context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[ref]
	if !ok || item.OwnerUserID != userID {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) Lock(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	return m.Get(ctx, ref, userID)
}

func (m *memStore) MarkStarted(_ context.Context, ref models.ItemRef, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ref].Status = models.StatusInProgress
	m.items[ref].StartTime = &at
	return nil
}

func (m *memStore) SetStatus(_ context.Context, ref models.ItemRef, status models.Status, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ref].Status = status
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, ref models.ItemRef, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ref].Status = models.StatusCompleted
	m.items[ref].EndTime = &at
	return nil
}

func (m *memStore) openSessions(ref models.ItemRef, userID int64) []*models.TimerSession {
	var open []*models.TimerSession
	for _, s := range m.sessions {
		if s.Ref() == ref && s.UserID == userID && s.IsOpen() {
			open = append(open, s)
		}
	}
	return open
}

func (m *memStore) FindOpenSession(_ context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideOpen {
		return nil, nil
	}
	open := m.openSessions(ref, userID)
	switch len(open) {
	case 0:
		return nil, nil
	case 1:
		cp := *open[0]
		return &cp, nil
	default:
		return nil, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, repository.ErrDuplicateOpenSession)
	}
}

func (m *memStore) FindLatestSession(_ context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.TimerSession
	for _, s := range m.sessions {
		if s.Ref() == ref && s.UserID == userID && (latest == nil || !s.StartTime.Before(latest.StartTime)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) CreateSession(_ context.Context, item *models.TrackableItem, userID int64, startedAt time.Time) (*models.TimerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.openSessions(item.Ref, userID)) > 0 {
		return nil, repository.ErrOpenSessionExists
	}

	m.nextID++
	s := &models.TimerSession{ID: m.nextID, TaskID: item.TaskID, UserID: userID, StartTime: startedAt}
	if item.Ref.Kind == models.KindSubTask {
		id := item.Ref.ID
		s.SubTaskID = &id
	}
	m.sessions = append(m.sessions, s)
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.TimerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.sessions {
		if stored.ID == s.ID {
			cp := *s
			m.sessions[i] = &cp
			return nil
		}
	}
	return errors.New("session not found")
}

func (m *memStore) CloseSession(_ context.Context, s *models.TimerSession, endTime time.Time, backgroundTime, breakDuration int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.sessions {
		if stored.ID != s.ID {
			continue
		}
		if !stored.IsOpen() {
			return repository.ErrSessionClosed
		}
		stored.EndTime = &endTime
		stored.BackgroundTime = backgroundTime
		stored.BreakDuration = breakDuration
		*s = *stored
		return nil
	}
	return errors.New("session not found")
}

func (m *memStore) ItemTotals(_ context.Context, ref models.ItemRef, userID int64) (models.ItemSessionTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t models.ItemSessionTotals
	for _, s := range m.sessions {
		if s.Ref() != ref || s.UserID != userID {
			continue
		}
		t.Sessions++
		t.WorkDuration += s.WorkDuration
		t.BreakDuration += s.BreakDuration
		t.PausedDuration += s.PausedDuration
		t.BackgroundTime += s.BackgroundTime
		t.PomodoroCycles += s.PomodoroCycles
	}
	return t, nil
}

// lockingTx serialises transactions the way the item row lock does.
type lockingTx struct {
	mu    sync.Mutex
	calls int
}

func (l *lockingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return fn(ctx)
}

type recordingQueue struct {
	mu     sync.Mutex
	events []models.TimerEvent
}

func (q *recordingQueue) Enqueue(_ context.Context, ev models.TimerEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type timerFixture struct {
	store *memStore
	tx    *lockingTx
	queue *recordingQueue
	clock *fakeClock
	svc   *TimerService
}

func newTimerFixture() *timerFixture {
	f := &timerFixture{
		store: newMemStore(),
		tx:    &lockingTx{},
		queue: &recordingQueue{},
		clock: &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewTimerService(f.store, f.store, f.tx, f.queue).WithClock(f.clock.Now)
	return f
}

const owner int64 = 42

// ─── Lifecycle ───

func TestTimer_FullLifecycle(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(7, owner, models.StatusPending)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, ref, owner)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.SessionID == 0 {
		t.Fatal("expected a session id")
	}
	if f.store.status(ref) != models.StatusInProgress {
		t.Fatalf("expected In Progress, got %s", f.store.status(ref))
	}

	f.clock.Advance(30 * time.Minute)
	paused, err := f.svc.Pause(ctx, ref, owner)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.WorkDuration != 1800 || paused.PomodoroCycles != 1 {
		t.Errorf("after first pause expected work 1800 and 1 cycle, got %d and %d", paused.WorkDuration, paused.PomodoroCycles)
	}

	f.clock.Advance(10 * time.Minute)
	resumed, err := f.svc.Resume(ctx, ref, owner)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.PausedDuration != 600 {
		t.Errorf("expected paused 600, got %d", resumed.PausedDuration)
	}
	if resumed.ID != started.SessionID {
		t.Errorf("resume must reuse session %d, got %d", started.SessionID, resumed.ID)
	}

	f.clock.Advance(20 * time.Minute)
	paused, err = f.svc.Pause(ctx, ref, owner)
	if err != nil {
		t.Fatalf("second pause: %v", err)
	}
	if paused.WorkDuration != 3000 {
		t.Errorf("expected work 3000 after second stretch, got %d", paused.WorkDuration)
	}
	if paused.PomodoroCycles != 1 {
		t.Errorf("a 20 minute stretch must not add a cycle, got %d", paused.PomodoroCycles)
	}

	f.clock.Advance(5 * time.Minute)
	if _, err := f.svc.Resume(ctx, ref, owner); err != nil {
		t.Fatalf("second resume: %v", err)
	}

	f.clock.Advance(15 * time.Minute)
	finished, err := f.svc.Finish(ctx, ref, owner)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.BackgroundTime != 4800 || finished.Cycles != 3 || finished.BreakTime != 900 {
		t.Errorf("unexpected finish result %+v", finished)
	}

	if f.store.status(ref) != models.StatusCompleted {
		t.Fatalf("expected Completed, got %s", f.store.status(ref))
	}

	sessions := f.store.sessionsFor(ref)
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.IsOpen() {
		t.Fatal("expected the session to be closed")
	}
	if s.PausedDuration != 900 || s.BackgroundTime != 4800 || s.BreakDuration != 900 {
		t.Errorf("unexpected stored session %+v", s)
	}

	actions := make([]string, 0, len(f.queue.events))
	for _, ev := range f.queue.events {
		actions = append(actions, ev.Action)
		if ev.UserID != owner || ev.Item != ref {
			t.Errorf("unexpected event target %+v", ev)
		}
	}
	want := []string{"started", "paused", "resumed", "paused", "resumed", "finished"}
	if fmt.Sprint(actions) != fmt.Sprint(want) {
		t.Errorf("expected events %v, got %v", want, actions)
	}
}

func TestTimer_FinishFromPaused(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	ctx := context.Background()

	f.svc.Start(ctx, ref, owner)
	f.clock.Advance(10 * time.Minute)
	f.svc.Pause(ctx, ref, owner)
	f.clock.Advance(20 * time.Minute)

	res, err := f.svc.Finish(ctx, ref, owner)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.BackgroundTime != 1800 || res.Cycles != 1 || res.BreakTime != 300 {
		t.Fatalf("unexpected finish result %+v", res)
	}
}

func TestTimer_SubTaskSessionsCarryParent(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addSubTask(3, 9, owner, models.StatusPending)

	if _, err := f.svc.Start(context.Background(), ref, owner); err != nil {
		t.Fatalf("start: %v", err)
	}

	sessions := f.store.sessionsFor(ref)
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if sessions[0].TaskID != 9 || sessions[0].SubTaskID == nil || *sessions[0].SubTaskID != 3 {
		t.Fatalf("expected session on sub-task 3 of task 9, got %+v", sessions[0])
	}
}

// ─── Rejected transitions ───

func TestTimer_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		status models.Status
		op     func(*TimerService, models.ItemRef) error
	}{
		{"start in progress", models.StatusInProgress, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Start(context.Background(), r, owner)
			return err
		}},
		{"start paused", models.StatusPaused, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Start(context.Background(), r, owner)
			return err
		}},
		{"start completed", models.StatusCompleted, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Start(context.Background(), r, owner)
			return err
		}},
		{"resume pending", models.StatusPending, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Resume(context.Background(), r, owner)
			return err
		}},
		{"resume in progress", models.StatusInProgress, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Resume(context.Background(), r, owner)
			return err
		}},
		{"finish pending", models.StatusPending, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Finish(context.Background(), r, owner)
			return err
		}},
		{"finish completed", models.StatusCompleted, func(s *TimerService, r models.ItemRef) error {
			_, err := s.Finish(context.Background(), r, owner)
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTimerFixture()
			ref := f.store.addTask(1, owner, tc.status)

			err := tc.op(f.svc, ref)

			var invalid *InvalidStateError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidStateError, got %T (%v)", err, err)
			}
			if f.store.status(ref) != tc.status {
				t.Errorf("status changed to %s", f.store.status(ref))
			}
		})
	}
}

func TestTimer_StartTwice(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)

	if _, err := f.svc.Start(context.Background(), ref, owner); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := f.svc.Start(context.Background(), ref, owner)

	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError on second start, got %v", err)
	}
	if n := len(f.store.sessionsFor(ref)); n != 1 {
		t.Fatalf("expected one session, got %d", n)
	}
}

func TestTimer_PauseWithoutSession(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusInProgress)

	_, err := f.svc.Pause(context.Background(), ref, owner)

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTimer_PauseWhilePaused(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	ctx := context.Background()

	f.svc.Start(ctx, ref, owner)
	f.svc.Pause(ctx, ref, owner)
	_, err := f.svc.Pause(ctx, ref, owner)

	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestTimer_ResumeWithoutSession(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPaused)

	_, err := f.svc.Resume(context.Background(), ref, owner)

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTimer_ResumeClosedSession(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPaused)
	end := f.clock.Now()
	f.store.sessions = append(f.store.sessions, &models.TimerSession{ID: 99, TaskID: 1, UserID: owner, StartTime: end.Add(-time.Hour), EndTime: &end})

	_, err := f.svc.Resume(context.Background(), ref, owner)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestTimer_Ownership(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)

	_, err := f.svc.Start(context.Background(), ref, owner+1)

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for a foreign item, got %v", err)
	}
	if f.store.status(ref) != models.StatusPending {
		t.Fatal("foreign start must not change the item")
	}

	_, err = f.svc.Start(context.Background(), models.ItemRef{Kind: models.KindTask, ID: 404}, owner)
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for a missing item, got %v", err)
	}
}

// ─── Open-session invariant ───

func TestTimer_ConcurrentStart(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(context.Background(), ref, owner)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		var invalid *InvalidStateError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &invalid):
			rejected++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != callers-1 {
		t.Fatalf("expected 1 success and %d rejections, got %d and %d", callers-1, ok, rejected)
	}
	if n := len(f.store.sessionsFor(ref)); n != 1 {
		t.Fatalf("expected one session, got %d", n)
	}
}

func TestTimer_StartHitsUniqueIndex(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	f.store.sessions = append(f.store.sessions, &models.TimerSession{ID: 5, TaskID: 1, UserID: owner, StartTime: f.clock.Now()})
	f.store.hideOpen = true

	_, err := f.svc.Start(context.Background(), ref, owner)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestTimer_StartWithExistingOpenSession(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	f.store.sessions = append(f.store.sessions, &models.TimerSession{ID: 5, TaskID: 1, UserID: owner, StartTime: f.clock.Now()})

	_, err := f.svc.Start(context.Background(), ref, owner)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if f.store.status(ref) != models.StatusPending {
		t.Fatal("rejected start must not change the item")
	}
}

func TestTimer_DuplicateOpenSessions(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusInProgress)
	now := f.clock.Now()
	f.store.sessions = append(f.store.sessions,
		&models.TimerSession{ID: 1, TaskID: 1, UserID: owner, StartTime: now},
		&models.TimerSession{ID: 2, TaskID: 1, UserID: owner, StartTime: now},
	)

	_, err := f.svc.CheckStarted(context.Background(), ref, owner)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

// ─── CheckStarted ───

func TestTimer_CheckStarted(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	ctx := context.Background()

	status, err := f.svc.CheckStarted(ctx, ref, owner)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status.IsStarted || status.Session != nil {
		t.Fatalf("expected not started, got %+v", status)
	}

	f.svc.Start(ctx, ref, owner)
	calls := f.tx.calls

	status, err = f.svc.CheckStarted(ctx, ref, owner)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.IsStarted || status.Session == nil {
		t.Fatalf("expected started with session, got %+v", status)
	}
	if f.tx.calls != calls {
		t.Error("CheckStarted must not open a transaction")
	}
	if len(f.queue.events) != 1 {
		t.Errorf("CheckStarted must not emit events, got %d", len(f.queue.events))
	}
}

// ─── Storage failures ───

func TestTimer_StorageFailure(t *testing.T) {
	f := newTimerFixture()
	ref := f.store.addTask(1, owner, models.StatusPending)
	f.store.lockErr = errors.New("connection reset")

	_, err := f.svc.Start(context.Background(), ref, owner)

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %T", err)
	}
	if se.Unwrap() == nil || se.Unwrap().Error() != "connection reset" {
		t.Errorf("expected wrapped cause, got %v", se.Unwrap())
	}
}

func TestServiceErr_WrapsUntypedErrors(t *testing.T) {
	err := serviceErr("commit", errors.New("tx closed"))
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "commit" {
		t.Fatalf("expected StorageError for commit, got %v", err)
	}

	nf := &NotFoundError{Message: "x"}
	if serviceErr("op", nf) != nf {
		t.Fatal("typed errors must pass through unchanged")
	}
}
