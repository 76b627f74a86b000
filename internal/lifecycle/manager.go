package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/models"
)

// DefaultTTL is how long an entry lives without an explicit cooldown.
const DefaultTTL = 4 * time.Hour

// Manager drives the per-identity state machine. It is safe for use from
// concurrent symbol cycles; all state lives in the Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewManager(store Store, ttl time.Duration, logger *logrus.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// CanProcess applies the processability rule: an identity may be
// (re)processed unless a live entry is INVALIDATED or in unexpired
// COOLDOWN. Expired entries count as absent.
func (m *Manager) CanProcess(ctx context.Context, identity string) (bool, error) {
	record, err := m.store.Get(ctx, identity)
	if err != nil {
		return false, err
	}
	if record == nil || record.Expired(m.now()) {
		return true, nil
	}
	switch record.State {
	case models.StateInvalidated, models.StateCooldown:
		return false, nil
	default:
		return true, nil
	}
}

// Track registers a first sighting in SETUP. An existing unexpired entry
// is left untouched.
func (m *Manager) Track(ctx context.Context, signal *models.CandidateSignal) error {
	identity := signal.Identity()
	record, err := m.store.Get(ctx, identity)
	if err != nil {
		return err
	}
	if record != nil && !record.Expired(m.now()) {
		return nil
	}
	now := m.now()
	return m.store.Put(ctx, &models.SignalRecord{
		Identity:  identity,
		Symbol:    signal.Symbol,
		ModelID:   signal.ModelID,
		State:     models.StateSetup,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})
}

// Trigger moves SETUP or TRIGGERED to TRIGGERED, used when fusion and
// validation pass for the identity's cycle.
func (m *Manager) Trigger(ctx context.Context, identity, reason string) error {
	return m.transition(ctx, identity, models.StateTriggered, reason,
		models.StateSetup, models.StateTriggered)
}

// Confirm moves TRIGGERED to CONFIRMED after the secondary confirmation.
func (m *Manager) Confirm(ctx context.Context, identity, reason string) error {
	return m.transition(ctx, identity, models.StateConfirmed, reason,
		models.StateTriggered)
}

// Invalidate moves any live entry to INVALIDATED; an absent identity gets
// a fresh INVALIDATED entry so the rejection still blocks reprocessing.
func (m *Manager) Invalidate(ctx context.Context, identity, reason string) error {
	record, err := m.liveOrNew(ctx, identity)
	if err != nil {
		return err
	}
	record.State = models.StateInvalidated
	record.Reason = reason
	record.UpdatedAt = m.now()
	m.logger.WithFields(logrus.Fields{
		"identity": identity,
		"reason":   reason,
	}).Debug("Signal invalidated")
	return m.store.Put(ctx, record)
}

// Cooldown parks any live entry in COOLDOWN for the severity's configured
// duration; the entry expires (and the identity is reborn) afterwards.
func (m *Manager) Cooldown(ctx context.Context, identity string, severity adaptive.Severity, params adaptive.Snapshot, reason string) error {
	record, err := m.liveOrNew(ctx, identity)
	if err != nil {
		return err
	}
	now := m.now()
	hours := params.CooldownDuration(severity)
	record.State = models.StateCooldown
	record.Reason = reason
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(time.Duration(hours * float64(time.Hour)))
	m.logger.WithFields(logrus.Fields{
		"identity": identity,
		"severity": severity,
		"hours":    hours,
	}).Debug("Signal cooling down")
	return m.store.Put(ctx, record)
}

// State returns the live entry for an identity, or nil when absent or
// expired.
func (m *Manager) State(ctx context.Context, identity string) (*models.SignalRecord, error) {
	record, err := m.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Expired(m.now()) {
		return nil, nil
	}
	return record, nil
}

// Sweep evicts expired entries once.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.Sweep(ctx, m.now())
}

// StartSweeper runs Sweep on the interval until the context ends.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := m.Sweep(ctx)
				if err != nil {
					m.logger.WithError(err).Warn("Lifecycle sweep failed")
					continue
				}
				if removed > 0 {
					m.logger.WithField("removed", removed).Debug("Lifecycle sweep evicted entries")
				}
			}
		}
	}()
}

func (m *Manager) transition(ctx context.Context, identity string, to models.LifecycleState, reason string, from ...models.LifecycleState) error {
	record, err := m.store.Get(ctx, identity)
	if err != nil {
		return err
	}
	if record == nil || record.Expired(m.now()) {
		return fmt.Errorf("no live lifecycle entry for %s", identity)
	}
	allowed := false
	for _, s := range from {
		if record.State == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid transition %s -> %s for %s", record.State, to, identity)
	}
	record.State = to
	record.Reason = reason
	record.UpdatedAt = m.now()
	return m.store.Put(ctx, record)
}

// liveOrNew fetches the live entry or seeds a fresh one for identities the
// store has never seen (or has already expired).
func (m *Manager) liveOrNew(ctx context.Context, identity string) (*models.SignalRecord, error) {
	record, err := m.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if record == nil || record.Expired(now) {
		record = &models.SignalRecord{
			Identity:  identity,
			State:     models.StateSetup,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
		}
	}
	return record, nil
}
