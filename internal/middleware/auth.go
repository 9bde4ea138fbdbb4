package middleware

import (
	"context"
	"net/http"
	"strings"

	logpkg "github.com/benvon/dayplan/internal/logger"
	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// WorkspaceHeader carries the workspace a request is scoped to
	WorkspaceHeader = "X-Workspace-ID"
	// UserHeader carries the caller's user ID when a trusted proxy authenticates (AUTH_MODE=header)
	UserHeader = "X-User-ID"
)

// subjectNamespace derives stable user IDs from token subjects that are not UUIDs
var subjectNamespace = uuid.MustParse("6f3c1d2e-8a4b-4c5d-9e6f-7a8b9c0d1e2f")

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// Authenticator resolves the caller's identity and workspace for each request
type Authenticator struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewJWTAuthenticator authenticates bearer tokens with verifier
func NewJWTAuthenticator(verifier TokenVerifier, logger *zap.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, logger: logger}
}

// NewHeaderAuthenticator trusts the X-User-ID header set by an upstream proxy
func NewHeaderAuthenticator(logger *zap.Logger) *Authenticator {
	return &Authenticator{logger: logger}
}

// Middleware attaches a models.Identity to the request context or rejects the request
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, status, message := a.authenticate(r)
		if identity == nil {
			RespondError(w, r, status, http.StatusText(status), message, a.logger)
			return
		}

		workspaceID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(WorkspaceHeader)))
		if err != nil {
			a.logger.Debug("invalid_workspace_header",
				zap.String("workspace_id", logpkg.SanitizeHeader(r.Header.Get(WorkspaceHeader))),
			)
			RespondError(w, r, http.StatusBadRequest, "Bad Request", WorkspaceHeader+" header must be a UUID", a.logger)
			return
		}
		identity.WorkspaceID = workspaceID

		next.ServeHTTP(w, r.WithContext(request.WithIdentity(r.Context(), identity)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*models.Identity, int, string) {
	if a.verifier == nil {
		userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserHeader)))
		if err != nil {
			return nil, http.StatusUnauthorized, "Missing or invalid " + UserHeader + " header"
		}
		return &models.Identity{UserID: userID}, 0, ""
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, http.StatusUnauthorized, "Missing Authorization header"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, http.StatusUnauthorized, "Invalid Authorization header format"
	}

	claims, err := a.verifier.Verify(r.Context(), parts[1])
	if err != nil {
		a.logger.Info("token_verification_failed", zap.String("error", logpkg.SanitizeError(err)))
		return nil, http.StatusUnauthorized, "Invalid or expired token"
	}

	return &models.Identity{
		UserID:  UserIDFromSubject(claims.Sub),
		Subject: claims.Sub,
		Email:   claims.Email,
	}, 0, ""
}

// UserIDFromSubject maps a token subject to a user ID: UUID subjects are used
// as-is, others are hashed into a stable name-based UUID
func UserIDFromSubject(sub string) uuid.UUID {
	if id, err := uuid.Parse(sub); err == nil {
		return id
	}
	return uuid.NewSHA1(subjectNamespace, []byte(sub))
}
