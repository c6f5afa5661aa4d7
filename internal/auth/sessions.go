package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/session"
	"github.com/finbridge/authcore/internal/store"
)

// SessionView is the user-facing shape of one session.
type SessionView struct {
	ID           uuid.UUID  `json:"id"`
	DeviceInfo   string     `json:"device_info"`
	Location     string     `json:"location"`
	IPAddress    string     `json:"ip_address,omitempty"`
	LastActivity *time.Time `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	IsCurrent    bool       `json:"is_current"`
	IsTrusted    bool       `json:"is_trusted"`
}

// ListSessions returns the caller's live sessions, most recently used
// first (never-used sessions sort before used ones). currentSessionID is
// the jti of the presented access token and marks is_current.
func (s *Service) ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]SessionView, error) {
	sessions, err := s.sessions.List(ctx, userID, store.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list sessions: %w", err))
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].LastUsedAt, sessions[j].LastUsedAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.After(*b)
		}
	})

	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		s.backfillLocation(ctx, sess)
		views = append(views, SessionView{
			ID:           sess.ID,
			DeviceInfo:   sess.DeviceInfo,
			Location:     sess.Location,
			IPAddress:    sess.IPAddress,
			LastActivity: sess.LastUsedAt,
			CreatedAt:    sess.CreatedAt,
			IsCurrent:    sess.ID == currentSessionID,
			IsTrusted:    sess.IsTrusted,
		})
	}
	return views, nil
}

// backfillLocation resolves and persists a missing location on read.
// Best-effort: geolocation failures leave the field empty.
func (s *Service) backfillLocation(ctx context.Context, sess *session.Session) {
	if sess.Location != "" || sess.IPAddress == "" {
		return
	}
	loc, err := s.geo.Locate(ctx, sess.IPAddress)
	if err != nil || loc == "" {
		return
	}
	sess.Location = loc
	if err := s.store.RefreshTokens().UpdateLocation(ctx, sess.ID, loc); err != nil {
		s.log.Debug("location_backfill_failed", "session_id", sess.ID, "error", err)
	}
}

// RevokeSession ends one of the caller's other sessions. The current
// session is rejected: logout is the path for ending it, and the
// distinction keeps "sign out everywhere else" flows honest.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID, currentSessionID uuid.UUID) error {
	if sessionID == currentSessionID {
		return apperr.Invalid("Cannot revoke the current session; use logout instead")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return apperr.NotFound("Session not found")
		}
		return apperr.Internal(err)
	}
	// Not-owned is reported identically to not-found.
	if sess.UserID != userID {
		return apperr.NotFound("Session not found")
	}
	if sess.IsRevoked {
		return apperr.Invalid("Session is already revoked")
	}

	ok, err := s.sessions.Revoke(ctx, sessionID, "user_revoked")
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Invalid("Session is already revoked")
	}

	s.blacklistSession(ctx, sess)
	s.log.Info("session_revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

// RevokeOtherSessions ends every session of the caller except the current
// one. Returns the count revoked.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, currentSessionID uuid.UUID) (int, error) {
	return s.revokeAll(ctx, userID, &currentSessionID, "user_revoked_others")
}

// RevokeAllSessions ends every session of the caller, the current one
// included. The caller is logged out system-wide.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.revokeAll(ctx, userID, nil, "user_revoked_all")
}

func (s *Service) revokeAll(ctx context.Context, userID uuid.UUID, except *uuid.UUID, reason string) (int, error) {
	// Snapshot before revoking so the blacklist gets every victim.
	victims, err := s.sessions.List(ctx, userID, store.ListFilter{ActiveOnly: true})
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("list sessions: %w", err))
	}

	count, err := s.sessions.RevokeAllForUser(ctx, userID, reason, except)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	for _, sess := range victims {
		if except != nil && sess.ID == *except {
			continue
		}
		s.blacklistSession(ctx, sess)
	}

	s.log.Info("sessions_bulk_revoked", "user_id", userID, "count", count, "reason", reason)
	return count, nil
}

// blacklistSession pushes the revocation into the cache so access tokens
// minted against the session die before their natural expiry. Cache
// failures are logged; the database row remains the authority.
func (s *Service) blacklistSession(ctx context.Context, sess *session.Session) {
	if s.blacklist == nil {
		return
	}
	if err := s.blacklist.Add(ctx, sess.ID, sess.Remaining(s.now())); err != nil {
		s.log.Error("blacklist_add_failed", "session_id", sess.ID, "error", err)
	}
}
