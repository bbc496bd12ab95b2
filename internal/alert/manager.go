// Package alert implements the crisis alert lifecycle manager.
//
// The manager owns every CrisisAlert from trigger to terminal state. It
// enforces two guarantees the rest of the system depends on:
//
//   - at most one active alert (pending/dispatching) per user at any time;
//     concurrent triggers for the same user escalate the active alert instead
//     of spawning a parallel one, and the duplicate trigger is recorded as a
//     suppressed audit row;
//   - exactly one dispatch worker per alert, so concurrent dispatch attempts
//     can never double-notify a contact set.
//
// Per-user serialization uses a refcounted keyed-mutex arena, never a global
// lock, so unrelated users' alerts proceed fully in parallel. Dispatch is
// decoupled from the detection path: the detecting caller returns as soon as
// the alert is handed to its worker goroutine. Delivery retries use
// exponential backoff with jitter (failsafe-go) bounded by a configured
// attempt budget, and every attempt runs under its own timeout.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/solmere/go-wellness-backend/internal/detect"
	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/notify"
)

// Contract-violation and lifecycle errors. These indicate programming errors
// or invalid requests, never transient conditions; they are not retried.
var (
	// ErrInvalidTransition is returned when a requested state change is not
	// permitted by the lifecycle (e.g. dispatching a delivered alert). Store
	// implementations return it when a guarded state update matches no row.
	ErrInvalidTransition = errors.New("alert: invalid state transition")

	// ErrDispatchInFlight is returned when dispatch is requested for an
	// alert whose worker is already running.
	ErrDispatchInFlight = errors.New("alert: dispatch already in flight")

	// ErrAlertResolved is returned when dispatch is requested for a manually
	// resolved alert.
	ErrAlertResolved = errors.New("alert: already resolved")

	// ErrNoContacts is returned by a dispatch attempt when the user has no
	// registered contacts; retrying cannot help, so it is permanent.
	ErrNoContacts = errors.New("alert: no contacts registered for user")

	// ErrClosed is returned when the manager is shutting down.
	ErrClosed = errors.New("alert: manager closed")
)

// Store is the persistence port for alerts. Implementations must make
// SetAlertState and SetDelivered conditional on the expected current state
// and return ErrInvalidTransition when the guard does not match.
type Store interface {
	// GetActiveAlert returns the user's alert in state pending/dispatching,
	// or (nil, nil) when none exists.
	GetActiveAlert(ctx context.Context, userID string) (*domain.CrisisAlert, error)

	// GetAlert fetches an alert by ID.
	GetAlert(ctx context.Context, id string) (*domain.CrisisAlert, error)

	// CreateAlert inserts a new alert row.
	CreateAlert(ctx context.Context, a *domain.CrisisAlert) error

	// EscalateAlert updates severity and trigger count on an existing alert.
	EscalateAlert(ctx context.Context, id string, severity, triggerCount int) error

	// RecordAttempt persists attempt bookkeeping before a delivery attempt.
	RecordAttempt(ctx context.Context, id string, attemptCount int, at time.Time) error

	// SetAlertState transitions id from -> to, guarded on the from state.
	SetAlertState(ctx context.Context, id string, from, to domain.AlertState) error

	// SetDelivered transitions dispatching -> delivered and records the
	// contacts notified, in the exact order they were notified.
	SetDelivered(ctx context.Context, id string, notified []string) error

	// MarkResolved stamps the manual-resolution time.
	MarkResolved(ctx context.Context, id string, at time.Time) error
}

// ContactSource lists a user's trusted contacts for notification.
type ContactSource interface {
	ListContacts(ctx context.Context, userID string) ([]domain.Contact, error)
}

// Config holds dispatch retry and timeout policy.
type Config struct {
	MaxAttempts    int           // total delivery attempts per dispatch (>= 1)
	BaseDelay      time.Duration // first backoff delay
	MaxDelay       time.Duration // backoff ceiling
	JitterFactor   float64       // e.g. 0.2 for +-20%
	AttemptTimeout time.Duration // per-attempt deadline for channel I/O
}

// DefaultConfig returns the production dispatch policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      2 * time.Second,
		MaxDelay:       2 * time.Minute,
		JitterFactor:   0.2,
		AttemptTimeout: 10 * time.Second,
	}
}

// Manager is the alert lifecycle state machine. Safe for concurrent use.
type Manager struct {
	store    Store
	contacts ContactSource
	channel  notify.Channel
	cfg      Config
	log      zerolog.Logger

	locks *keyedLocks

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

// NewManager constructs a Manager. Degenerate config values fall back to
// defaults so a zero Config cannot produce a zero-attempt dispatcher.
func NewManager(store Store, contacts ContactSource, channel notify.Channel, cfg Config, log zerolog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = def.MaxDelay
		if cfg.MaxDelay < cfg.BaseDelay {
			cfg.MaxDelay = cfg.BaseDelay
		}
	}
	if cfg.JitterFactor < 0 || cfg.JitterFactor >= 1 {
		cfg.JitterFactor = def.JitterFactor
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return &Manager{
		store:    store,
		contacts: contacts,
		channel:  channel,
		cfg:      cfg,
		log:      log,
		locks:    newKeyedLocks(),
		inflight: make(map[string]context.CancelFunc),
	}
}

// OnCrisisDetected applies a crisis determination to the user's active-alert
// slot. The whole check-then-act sequence runs under the user's keyed mutex,
// making dedup/escalation atomic with creation.
//
// When an active alert exists, its severity is escalated to the maximum
// observed, the trigger evidence is counted, a suppressed audit row records
// the duplicate trigger, and the existing alert is returned unchanged in
// identity. Otherwise a new alert is created in pending, moved to
// dispatching, and handed to its dispatch worker; the caller is never blocked
// on delivery. The worker delivers the alert as snapshotted at spawn, so an
// escalation that lands after dispatch started is recorded on the row but not
// reflected in the payload already in flight.
func (m *Manager) OnCrisisDetected(ctx context.Context, det domain.CrisisDetermination) (*domain.CrisisAlert, error) {
	if !det.Triggered {
		return nil, nil
	}

	unlock := m.locks.Lock(det.UserID)
	defer unlock()

	active, err := m.store.GetActiveAlert(ctx, det.UserID)
	if err != nil {
		return nil, fmt.Errorf("query active alert: %w", err)
	}

	if active != nil {
		severity := active.SeverityLevel
		if det.Severity > severity {
			severity = det.Severity
		}
		triggers := active.TriggerCount + 1
		if err := m.store.EscalateAlert(ctx, active.ID, severity, triggers); err != nil {
			return nil, fmt.Errorf("escalate alert: %w", err)
		}
		active.SeverityLevel = severity
		active.TriggerCount = triggers

		suppressed := &domain.CrisisAlert{
			ID:             uuid.NewString(),
			UserID:         det.UserID,
			SeverityLevel:  det.Severity,
			TriggerPattern: detect.Describe(det),
			State:          domain.AlertSuppressed,
			CreatedAt:      time.Now().UTC(),
		}
		if err := m.store.CreateAlert(ctx, suppressed); err != nil {
			// The escalation already took effect; losing the audit row is
			// logged, not fatal to the caller.
			m.log.Error().Err(err).Str("user_id", det.UserID).Msg("record suppressed trigger")
		}
		alertsSuppressed.Inc()
		m.log.Info().
			Str("alert_id", active.ID).
			Str("user_id", det.UserID).
			Int("severity", severity).
			Int("trigger_count", triggers).
			Msg("crisis trigger merged into active alert")
		return active, nil
	}

	a := &domain.CrisisAlert{
		ID:             uuid.NewString(),
		UserID:         det.UserID,
		SeverityLevel:  det.Severity,
		TriggerPattern: detect.Describe(det),
		State:          domain.AlertPending,
		TriggerCount:   1,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.store.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	alertsCreated.Inc()

	if err := m.store.SetAlertState(ctx, a.ID, domain.AlertPending, domain.AlertDispatching); err != nil {
		return nil, fmt.Errorf("transition to dispatching: %w", err)
	}
	a.State = domain.AlertDispatching

	if err := m.spawnWorker(a); err != nil {
		m.log.Error().Err(err).Str("alert_id", a.ID).Msg("dispatch worker not started")
	}
	m.log.Info().
		Str("alert_id", a.ID).
		Str("user_id", det.UserID).
		Int("severity", a.SeverityLevel).
		Str("pattern", a.TriggerPattern).
		Msg("crisis alert created")
	return a, nil
}

// Dispatch manually (re-)dispatches an alert, e.g. after a terminal failure
// was remediated. It refuses terminal delivered/suppressed alerts, resolved
// alerts, and alerts whose worker is already running.
func (m *Manager) Dispatch(ctx context.Context, alertID string) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if a.ResolvedAt != nil {
		return ErrAlertResolved
	}
	switch a.State {
	case domain.AlertDispatching:
		// Created-but-never-dispatched alerts (e.g. after a crash) land
		// here; a live worker is caught below.
	case domain.AlertFailed:
		if err := m.store.SetAlertState(ctx, a.ID, domain.AlertFailed, domain.AlertDispatching); err != nil {
			return err
		}
		a.State = domain.AlertDispatching
	case domain.AlertPending:
		if err := m.store.SetAlertState(ctx, a.ID, domain.AlertPending, domain.AlertDispatching); err != nil {
			return err
		}
		a.State = domain.AlertDispatching
	default:
		return ErrInvalidTransition
	}
	return m.spawnWorker(a)
}

// Resolve records a manual resolution and cancels any pending retries for
// the alert. The lifecycle state is left as-is; ResolvedAt marks the human
// decision.
func (m *Manager) Resolve(ctx context.Context, alertID string) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if cancel, ok := m.inflight[a.ID]; ok {
		cancel()
	}
	m.mu.Unlock()

	if err := m.store.MarkResolved(ctx, a.ID, time.Now().UTC()); err != nil {
		return err
	}
	m.log.Info().Str("alert_id", a.ID).Str("user_id", a.UserID).Msg("alert resolved manually")
	return nil
}

// Close cancels all in-flight dispatch workers and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.inflight {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// spawnWorker registers and starts the single dispatch worker for a. The
// inflight registry guarantees one worker per alert.
func (m *Manager) spawnWorker(a *domain.CrisisAlert) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, running := m.inflight[a.ID]; running {
		m.mu.Unlock()
		return ErrDispatchInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.inflight[a.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	snapshot := *a
	go m.dispatchWorker(ctx, cancel, &snapshot)
	return nil
}

// dispatchWorker drives delivery attempts for one alert until it reaches
// delivered, exhausts its attempt budget, hits a permanent failure, or is
// canceled by manual resolution.
func (m *Manager) dispatchWorker(ctx context.Context, cancel context.CancelFunc, a *domain.CrisisAlert) {
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.inflight, a.ID)
		m.mu.Unlock()
		m.wg.Done()
	}()

	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(m.cfg.BaseDelay, m.cfg.MaxDelay).
		WithJitterFactor(m.cfg.JitterFactor).
		WithMaxRetries(m.cfg.MaxAttempts - 1).
		HandleIf(func(_ any, err error) bool { return notify.IsTransient(err) }).
		Build()

	_, err := failsafe.With(retry).WithContext(ctx).Get(func() (any, error) {
		return nil, m.attempt(ctx, a)
	})
	if err == nil {
		alertsTerminal.WithLabelValues("delivered").Inc()
		m.log.Info().
			Str("alert_id", a.ID).
			Str("user_id", a.UserID).
			Int("attempts", a.AttemptCount).
			Strs("notified", a.NotifiedContacts).
			Msg("alert delivered")
		return
	}
	if ctx.Err() != nil {
		m.log.Info().Str("alert_id", a.ID).Msg("dispatch canceled")
		return
	}

	alertsTerminal.WithLabelValues("failed").Inc()
	// Never silently dropped: a terminally failed alert needs a human.
	m.log.Error().
		Err(err).
		Str("alert_id", a.ID).
		Str("user_id", a.UserID).
		Int("attempts", a.AttemptCount).
		Msg("alert notification exhausted; manual follow-up required")
}

// attempt performs one delivery attempt: bookkeeping, contact fan-out in
// priority order, and the resulting state transition. Failures transition
// dispatching -> failed so the lifecycle is observable between retries; the
// next retry moves failed -> dispatching again.
func (m *Manager) attempt(ctx context.Context, a *domain.CrisisAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.State == domain.AlertFailed {
		if err := m.store.SetAlertState(ctx, a.ID, domain.AlertFailed, domain.AlertDispatching); err != nil {
			return err
		}
		a.State = domain.AlertDispatching
	}

	a.AttemptCount++
	now := time.Now().UTC()
	a.LastAttemptAt = &now
	if err := m.store.RecordAttempt(ctx, a.ID, a.AttemptCount, now); err != nil {
		return err
	}

	contacts, err := m.contacts.ListContacts(ctx, a.UserID)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		m.failAttempt(ctx, a, "permanent_error")
		return ErrNoContacts
	}
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].Priority < contacts[j].Priority })

	payload := notify.AlertPayload{
		AlertID:        a.ID,
		UserID:         a.UserID,
		SeverityLevel:  a.SeverityLevel,
		TriggerPattern: a.TriggerPattern,
		CreatedAt:      a.CreatedAt,
	}

	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	defer cancel()

	notified := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if _, err := m.channel.Notify(attemptCtx, c, payload); err != nil {
			outcome := "permanent_error"
			if notify.IsTransient(err) {
				outcome = "transient_error"
			}
			m.failAttempt(ctx, a, outcome)
			m.log.Warn().
				Err(err).
				Str("alert_id", a.ID).
				Str("contact_id", c.ID).
				Int("attempt", a.AttemptCount).
				Msg("delivery attempt failed")
			return err
		}
		notified = append(notified, c.ID)
	}

	if err := m.store.SetDelivered(ctx, a.ID, notified); err != nil {
		return err
	}
	a.State = domain.AlertDelivered
	a.NotifiedContacts = notified
	dispatchAttempts.WithLabelValues("success").Inc()
	return nil
}

// failAttempt records the failed attempt outcome and parks the alert in
// failed until the next retry (or terminally, when the budget is spent).
func (m *Manager) failAttempt(ctx context.Context, a *domain.CrisisAlert, outcome string) {
	dispatchAttempts.WithLabelValues(outcome).Inc()
	if err := m.store.SetAlertState(ctx, a.ID, domain.AlertDispatching, domain.AlertFailed); err != nil {
		m.log.Error().Err(err).Str("alert_id", a.ID).Msg("record failed attempt state")
		return
	}
	a.State = domain.AlertFailed
}
