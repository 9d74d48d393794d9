package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/event"
	"github.com/marcus-menezes/starstore-backend/internal/identity"
	"github.com/marcus-menezes/starstore-backend/internal/repository"
	"github.com/marcus-menezes/starstore-backend/internal/store"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
)

// CartEvents is the slice of the event producer the cart services need.
type CartEvents interface {
	PublishCartUpdated(ctx context.Context, sessionID string, items []domain.CartItem) error
	PublishCartSynced(ctx context.Context, data event.CartSyncedData) error
}

// snapshotKey maps an identity to its persisted snapshot key. A user's cart
// follows them across devices under one key; a guest cart belongs to the
// device session it was built in.
func snapshotKey(sessionID string, id identity.Identity) string {
	if id.IsGuest() {
		return "guest:" + sessionID
	}
	return "user:" + id.UserID()
}

// sessionState tracks the last identity observed for one session. Its mutex
// serializes swaps for the session, so a transition observed while a swap is
// in flight waits instead of interleaving.
type sessionState struct {
	mu     sync.Mutex
	prev   identity.Identity
	seeded bool
}

// Syncer keeps each session's live cart aligned with the identity attached to
// the session's requests. On every identity transition it persists the
// outgoing identity's cart, loads the incoming identity's stored cart, and,
// when an anonymous session signs in, folds the guest cart into the user's
// cart before discarding the persisted guest copy.
//
// Storage failures never fail a swap: a failed load counts as an empty cart
// and a failed save is logged and skipped. The worst case is a stale or empty
// cart, never an error surfaced to the client.
type Syncer struct {
	stores    *store.Manager
	snapshots repository.SnapshotStore
	events    CartEvents
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewSyncer creates an identity-change cart synchronizer. events may be nil.
func NewSyncer(stores *store.Manager, snapshots repository.SnapshotStore, events CartEvents, logger *slog.Logger) *Syncer {
	return &Syncer{
		stores:    stores,
		snapshots: snapshots,
		events:    events,
		logger:    logger,
		sessions:  make(map[string]*sessionState),
	}
}

// Observe records the identity attached to the session's current request and
// performs a cart swap if it differs from the previously observed identity.
// The first observation for a session only seeds the tracking state; there is
// nothing to swap at that point.
func (s *Syncer) Observe(ctx context.Context, sessionID string, id identity.Identity) {
	state := s.sessionState(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.seeded {
		state.prev = id
		state.seeded = true
		return
	}

	if state.prev.Equal(id) {
		return
	}

	s.swap(ctx, sessionID, state.prev, id)
	state.prev = id
}

// swap runs the save-outgoing / load-incoming / merge / commit sequence.
// The live store is not touched until the save and load have both finished,
// so mid-swap readers see the previous cart rather than a torn state.
func (s *Syncer) swap(ctx context.Context, sessionID string, from, to identity.Identity) {
	cart, created := s.stores.GetOrCreate(sessionID)
	outKey := snapshotKey(sessionID, from)

	var outgoing []domain.CartItem
	if created {
		// The session had no live cart in this process (it only hit non-cart
		// endpoints, or the server restarted). The persisted snapshot is the
		// authoritative outgoing cart; saving the empty store here would
		// overwrite it.
		outgoing = s.loadOrEmpty(ctx, sessionID, outKey)
	} else {
		outgoing = cart.Items()
		if err := s.snapshots.Save(ctx, outKey, outgoing); err != nil {
			// The outgoing cart may be lost if this save fails; there is no
			// retry queue. Logged and counted, the swap continues.
			snapshotFailuresTotal.WithLabelValues("save").Inc()
			s.logger.ErrorContext(ctx, "failed to persist outgoing cart",
				slog.String("session_id", sessionID),
				slog.String("identity", from.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	inKey := snapshotKey(sessionID, to)
	incoming := s.loadOrEmpty(ctx, sessionID, inKey)

	merged := false
	result := incoming
	if from.IsGuest() && !to.IsGuest() {
		// Guest absorption: quantities of products present in both carts are
		// summed, guest-only products are carried over. The persisted guest
		// snapshot is deleted so it cannot be merged twice.
		result = domain.MergeCarts(incoming, outgoing)
		merged = true

		if err := s.snapshots.Delete(ctx, outKey); err != nil {
			snapshotFailuresTotal.WithLabelValues("delete").Inc()
			s.logger.ErrorContext(ctx, "failed to delete absorbed guest cart",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	cart.SetItems(result)

	kind := "swap"
	if merged {
		kind = "merge"
	}
	cartSwapsTotal.WithLabelValues(kind).Inc()

	s.logger.InfoContext(ctx, "cart identity swap",
		slog.String("session_id", sessionID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Bool("merged", merged),
		slog.Int("item_count", domain.ItemCount(result)),
	)

	if s.events != nil {
		if err := s.events.PublishCartSynced(ctx, event.CartSyncedData{
			SessionID:    sessionID,
			FromIdentity: from.String(),
			ToIdentity:   to.String(),
			Merged:       merged,
			ItemCount:    domain.ItemCount(result),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart.synced event",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// loadOrEmpty fetches a persisted snapshot, degrading any failure (including
// corrupt data) to an empty cart. Absence is the normal first-visit case and
// is not logged as a failure.
func (s *Syncer) loadOrEmpty(ctx context.Context, sessionID, key string) []domain.CartItem {
	items, err := s.snapshots.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			snapshotFailuresTotal.WithLabelValues("load").Inc()
			s.logger.ErrorContext(ctx, "failed to load cart snapshot, treating as empty",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return items
}

func (s *Syncer) sessionState(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		s.sessions[sessionID] = state
	}
	return state
}
