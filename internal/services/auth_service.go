package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/models"
	pkglogger "github.com/lmercier/portcullis/pkg/logger"
)

// UserStore defines the external user-record lookups the service needs.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// CredentialVerifier checks a plaintext password against a stored hash.
type CredentialVerifier interface {
	Compare(hashedPassword, password string) error
}

// AuthService ties the attempt tracker, credential verifier and session
// manager together into the login/logout flow.
type AuthService struct {
	users    UserStore
	tracker  *AttemptTracker
	sessions *auth.SessionManager
	verifier CredentialVerifier
	timing   *auth.TimingDelay
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

func NewAuthService(
	users UserStore,
	tracker *AttemptTracker,
	sessions *auth.SessionManager,
	verifier CredentialVerifier,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:    users,
		tracker:  tracker,
		sessions: sessions,
		verifier: verifier,
		timing:   timing,
		logger:   logger,
		audit:    audit,
	}
}

// Login runs admission, credential verification and session establishment in
// order. currentSessionID is the caller's existing session, if any; it is
// replaced on success. The anti-forgery check happens upstream, before the
// tracker is ever touched.
//
// Unknown username and wrong password are indistinguishable to the caller:
// both record a failure against the submitted username and return
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password, currentSessionID, ipAddress, userAgent string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", models.ErrInvalidCredentials
	}

	decision := s.tracker.CheckAdmission(ctx, username)
	if !decision.Allowed {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "rate_limited",
			Success:       false,
		})
		return "", &models.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", s.failLogin(ctx, username, ipAddress, userAgent, "unknown_username")
		}
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.verifier.Compare(user.PasswordHash, password); err != nil {
		return "", s.failLogin(ctx, username, ipAddress, userAgent, "wrong_password")
	}

	if err := s.tracker.RecordSuccess(ctx, username); err != nil {
		// The login itself is the success signal; a counter-store hiccup must
		// not fail the request.
		s.logger.Error("failed to reset attempt record", slog.Any("error", err))
	}

	if currentSessionID != "" {
		if err := s.sessions.Clear(ctx, currentSessionID); err != nil {
			s.logger.Error("failed to clear previous session", slog.Any("error", err))
		}
	}

	sessionID, err := s.sessions.Establish(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to establish session", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		Username:  username,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return sessionID, nil
}

// failLogin records the failure against the submitted username and returns
// the generic credentials error. The internal reason only goes to the audit
// log, never to the caller.
func (s *AuthService) failLogin(ctx context.Context, username, ipAddress, userAgent, reason string) error {
	if err := s.tracker.RecordFailure(ctx, username); err != nil {
		s.logger.Error("failed to record attempt failure", slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Username:      username,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		FailureReason: reason,
		Success:       false,
	})

	s.timing.Wait()
	return models.ErrInvalidCredentials
}

// Logout destroys the caller's session; idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID != "" {
		if user, err := s.sessions.CurrentUser(ctx, sessionID); err == nil {
			s.audit.LogSessionEvent("session_cleared", user.ID, "")
		}
	}
	return s.sessions.Clear(ctx, sessionID)
}

// CurrentUser resolves the caller's session to a user record.
func (s *AuthService) CurrentUser(ctx context.Context, sessionID string) (*models.User, error) {
	return s.sessions.CurrentUser(ctx, sessionID)
}

// IsAuthenticated reports whether the caller holds a live session.
func (s *AuthService) IsAuthenticated(ctx context.Context, sessionID string) bool {
	return s.sessions.IsAuthenticated(ctx, sessionID)
}
