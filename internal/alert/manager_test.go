package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/notify"
)

// fakeStore is an in-memory Store with the same guarded-transition contract
// as the SQL implementation.
type fakeStore struct {
	mu     sync.Mutex
	alerts map[string]*domain.CrisisAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]*domain.CrisisAlert)}
}

func (s *fakeStore) GetActiveAlert(_ context.Context, userID string) (*domain.CrisisAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.UserID == userID && a.State.Active() && a.ResolvedAt == nil {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetAlert(_ context.Context, id string) (*domain.CrisisAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) CreateAlert(_ context.Context, a *domain.CrisisAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *fakeStore) EscalateAlert(_ context.Context, id string, severity, triggerCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	a.SeverityLevel = severity
	a.TriggerCount = triggerCount
	return nil
}

func (s *fakeStore) RecordAttempt(_ context.Context, id string, attemptCount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	a.AttemptCount = attemptCount
	a.LastAttemptAt = &at
	return nil
}

func (s *fakeStore) SetAlertState(_ context.Context, id string, from, to domain.AlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.State != from {
		return ErrInvalidTransition
	}
	a.State = to
	return nil
}

func (s *fakeStore) SetDelivered(_ context.Context, id string, notified []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.State != domain.AlertDispatching {
		return ErrInvalidTransition
	}
	a.State = domain.AlertDelivered
	a.NotifiedContacts = append([]string(nil), notified...)
	return nil
}

func (s *fakeStore) MarkResolved(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	a.ResolvedAt = &at
	return nil
}

func (s *fakeStore) countByState(state domain.AlertState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.State == state {
			n++
		}
	}
	return n
}

type fakeContacts struct {
	contacts []domain.Contact
}

func (f *fakeContacts) ListContacts(context.Context, string) ([]domain.Contact, error) {
	return append([]domain.Contact(nil), f.contacts...), nil
}

// fakeChannel scripts delivery outcomes: failures counts down scripted
// errors (transient unless permanent is set) before notifications succeed.
// A non-nil gate blocks Notify until the gate closes or ctx expires.
type fakeChannel struct {
	mu        sync.Mutex
	failures  int
	permanent bool
	gate      chan struct{}
	notified  []string
	calls     int
}

func (f *fakeChannel) Notify(ctx context.Context, c domain.Contact, _ notify.AlertPayload) (notify.DeliveryReceipt, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return notify.DeliveryReceipt{}, &notify.ChannelError{ContactID: c.ID, Transient: true, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return notify.DeliveryReceipt{}, &notify.ChannelError{
			ContactID: c.ID,
			Transient: !f.permanent,
			Err:       errors.New("scripted failure"),
		}
	}
	f.notified = append(f.notified, c.ID)
	return notify.DeliveryReceipt{ContactID: c.ID, DeliveredAt: time.Now().UTC()}, nil
}

func (f *fakeChannel) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		JitterFactor:   0.1,
		AttemptTimeout: time.Second,
	}
}

func triggered(userID string, severity int) domain.CrisisDetermination {
	return domain.CrisisDetermination{
		UserID:        userID,
		Triggered:     true,
		ConsistentLow: true,
		Severity:      severity,
		EvaluatedAt:   time.Now().UTC(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(store *fakeStore, ch notify.Channel, cfg Config, contacts ...domain.Contact) *Manager {
	if len(contacts) == 0 {
		contacts = []domain.Contact{
			{ID: "c-primary", UserID: "u1", Name: "A", Kind: "sms", Priority: 1},
			{ID: "c-backup", UserID: "u1", Name: "B", Kind: "email", Priority: 2},
		}
	}
	return NewManager(store, &fakeContacts{contacts: contacts}, ch, cfg, zerolog.Nop())
}

func TestOnCrisisDetected_NotTriggeredIsNoop(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeChannel{}, fastConfig(3))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), domain.CrisisDetermination{UserID: "u1"})
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	if a != nil {
		t.Fatalf("untriggered determination must not create an alert, got %+v", a)
	}
}

func TestOnCrisisDetected_CreatesAndDelivers(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	m := newTestManager(store, ch, fastConfig(3))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 3))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	if a == nil || a.State != domain.AlertDispatching {
		t.Fatalf("expected dispatching alert, got %+v", a)
	}

	waitFor(t, "delivery", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertDelivered
	})

	got, _ := store.GetAlert(context.Background(), a.ID)
	if got.AttemptCount != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.AttemptCount)
	}
	want := []string{"c-primary", "c-backup"}
	if len(got.NotifiedContacts) != 2 || got.NotifiedContacts[0] != want[0] || got.NotifiedContacts[1] != want[1] {
		t.Fatalf("contacts not notified in priority order: %v", got.NotifiedContacts)
	}
}

func TestOnCrisisDetected_ConcurrentTriggersCreateOneAlert(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{gate: make(chan struct{})}
	m := newTestManager(store, ch, fastConfig(3))

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(severity int) {
			defer wg.Done()
			if _, err := m.OnCrisisDetected(context.Background(), triggered("u1", severity)); err != nil {
				t.Errorf("OnCrisisDetected: %v", err)
			}
		}(i%9 + 1)
	}
	wg.Wait()

	if got := store.countByState(domain.AlertDispatching); got != 1 {
		t.Fatalf("expected exactly one active alert, got %d", got)
	}
	if got := store.countByState(domain.AlertSuppressed); got != n-1 {
		t.Fatalf("expected %d suppressed audit rows, got %d", n-1, got)
	}

	active, _ := store.GetActiveAlert(context.Background(), "u1")
	if active.SeverityLevel != 9 {
		t.Fatalf("severity should escalate to max observed (9), got %d", active.SeverityLevel)
	}
	if active.TriggerCount != n {
		t.Fatalf("expected trigger count %d, got %d", n, active.TriggerCount)
	}

	close(ch.gate)
	m.Close()
}

func TestOnCrisisDetected_EscalatesActiveAlert(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{gate: make(chan struct{})}
	m := newTestManager(store, ch, fastConfig(3))

	first, err := m.OnCrisisDetected(context.Background(), triggered("u1", 2))
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	second, err := m.OnCrisisDetected(context.Background(), triggered("u1", 5))
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second trigger must return the active alert, got %s vs %s", second.ID, first.ID)
	}
	if second.SeverityLevel != 5 || second.TriggerCount != 2 {
		t.Fatalf("expected severity 5 / triggers 2, got %d / %d", second.SeverityLevel, second.TriggerCount)
	}

	// Lower-severity triggers never de-escalate.
	third, err := m.OnCrisisDetected(context.Background(), triggered("u1", 1))
	if err != nil {
		t.Fatalf("third trigger: %v", err)
	}
	if third.SeverityLevel != 5 {
		t.Fatalf("severity must not decrease, got %d", third.SeverityLevel)
	}

	close(ch.gate)
	m.Close()
}

func TestDispatch_TransientFailuresRetryToDelivered(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{failures: 2}
	m := newTestManager(store, ch, fastConfig(5))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 4))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}

	waitFor(t, "delivery after retries", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertDelivered
	})

	got, _ := store.GetAlert(context.Background(), a.ID)
	if got.AttemptCount != 3 {
		t.Fatalf("expected 3 attempts (2 failures + success), got %d", got.AttemptCount)
	}
	if got.LastAttemptAt == nil {
		t.Fatal("LastAttemptAt not recorded")
	}
}

func TestDispatch_ExhaustedBudgetEndsFailed(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{failures: 100}
	m := newTestManager(store, ch, fastConfig(3))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 7))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}

	waitFor(t, "terminal failure", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertFailed && got.AttemptCount == 3
	})
}

func TestDispatch_PermanentErrorStopsImmediately(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{failures: 100, permanent: true}
	m := newTestManager(store, ch, fastConfig(5))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 6))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}

	waitFor(t, "permanent failure", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertFailed
	})
	got, _ := store.GetAlert(context.Background(), a.ID)
	if got.AttemptCount != 1 {
		t.Fatalf("permanent errors must not retry, got %d attempts", got.AttemptCount)
	}
}

func TestDispatch_NoContactsFailsWithoutRetry(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeContacts{}, &fakeChannel{}, fastConfig(5), zerolog.Nop())
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 5))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	waitFor(t, "failure", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertFailed && got.AttemptCount == 1
	})
}

func TestDispatch_RejectsInFlightAndTerminal(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{gate: make(chan struct{})}
	m := newTestManager(store, ch, fastConfig(3))

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 4))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	if err := m.Dispatch(context.Background(), a.ID); !errors.Is(err, ErrDispatchInFlight) {
		t.Fatalf("expected ErrDispatchInFlight, got %v", err)
	}

	close(ch.gate)
	waitFor(t, "delivery", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertDelivered
	})
	if err := m.Dispatch(context.Background(), a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("dispatching a delivered alert must be rejected, got %v", err)
	}
	m.Close()
}

func TestDispatch_FailedAlertCanBeRedispatched(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{failures: 100, permanent: true}
	m := newTestManager(store, ch, fastConfig(2))
	defer m.Close()

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 8))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	waitFor(t, "terminal failure", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertFailed
	})

	// Remediate the channel, then manually re-dispatch.
	ch.mu.Lock()
	ch.failures = 0
	ch.mu.Unlock()

	if err := m.Dispatch(context.Background(), a.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, "delivery after redispatch", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.State == domain.AlertDelivered
	})
}

func TestResolve_CancelsRetriesAndStampsResolution(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{failures: 100}
	cfg := fastConfig(5)
	cfg.BaseDelay = 10 * time.Second // park the worker in backoff
	cfg.MaxDelay = 10 * time.Second
	m := newTestManager(store, ch, cfg)

	a, err := m.OnCrisisDetected(context.Background(), triggered("u1", 5))
	if err != nil {
		t.Fatalf("OnCrisisDetected: %v", err)
	}
	waitFor(t, "first attempt", func() bool {
		got, _ := store.GetAlert(context.Background(), a.ID)
		return got.AttemptCount >= 1
	})

	if err := m.Resolve(context.Background(), a.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, _ := store.GetAlert(context.Background(), a.ID)
	if got.ResolvedAt == nil {
		t.Fatal("ResolvedAt not stamped")
	}
	if err := m.Dispatch(context.Background(), a.ID); !errors.Is(err, ErrAlertResolved) {
		t.Fatalf("dispatching a resolved alert must be rejected, got %v", err)
	}

	done := make(chan struct{})
	go func() { m.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; worker not canceled")
	}
	if got, _ := store.GetAlert(context.Background(), a.ID); got.AttemptCount != 1 {
		t.Fatalf("resolution must cancel pending retries, got %d attempts", got.AttemptCount)
	}
}

func TestManagers_IndependentUsersProceedInParallel(t *testing.T) {
	store := newFakeStore()
	ch := &fakeChannel{}
	contacts := []domain.Contact{{ID: "c1", Kind: "sms", Priority: 1}}
	m := NewManager(store, &fakeContacts{contacts: contacts}, ch, fastConfig(3), zerolog.Nop())
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			if _, err := m.OnCrisisDetected(context.Background(), triggered(user, 3)); err != nil {
				t.Errorf("OnCrisisDetected(%s): %v", user, err)
			}
		}(i)
	}
	wg.Wait()

	waitFor(t, "all deliveries", func() bool {
		return store.countByState(domain.AlertDelivered) == 8
	})
}
