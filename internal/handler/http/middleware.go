package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marcus-menezes/starstore-backend/internal/identity"
	"github.com/marcus-menezes/starstore-backend/internal/service"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/httputil"
	"github.com/marcus-menezes/starstore-backend/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	identityKey  contextKey = "identity"
)

// SessionHeader is the header carrying the device session id. Every cart and
// order request must send it; it scopes the live cart and the guest snapshot.
const SessionHeader = "X-Session-ID"

// SessionID is middleware that reads the X-Session-ID header into the request
// context. Requests without a session id are rejected: there is no cart to
// operate on without one.
func SessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := strings.TrimSpace(r.Header.Get(SessionHeader))
		if sid == "" {
			httputil.WriteError(w, r, apperrors.InvalidInput(SessionHeader+" header is required"), nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		ctx = logger.WithSessionID(ctx, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate is middleware that resolves the request's identity from an
// optional Authorization bearer token. No token means the anonymous guest.
// A present but invalid or expired token is rejected with 401 rather than
// downgraded to guest, so a briefly broken token cannot swap a signed-in
// user's cart for the guest cart.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				ctx := context.WithValue(r.Context(), identityKey, identity.Guest())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := strings.TrimPrefix(auth, "Bearer ")
			if token == auth || token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("malformed Authorization header"), nil)
				return
			}

			userID, err := parseUserID(token, secret)
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity.User(userID))
			ctx = logger.WithUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SyncCart is middleware that reports the request's identity to the cart
// synchronizer before the handler runs, so an identity transition swaps the
// session's cart before the handler reads or mutates it.
func SyncCart(syncer *service.Syncer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			syncer.Observe(ctx, sessionIDFromContext(ctx), identityFromContext(ctx))
			next.ServeHTTP(w, r)
		})
	}
}

func parseUserID(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

func sessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}

func identityFromContext(ctx context.Context) identity.Identity {
	id, _ := ctx.Value(identityKey).(identity.Identity)
	return id
}
