package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
)

var oidcIssuers = map[string]string{
	"google":    "https://accounts.google.com",
	"microsoft": "https://login.microsoftonline.com/common/v2.0",
}

// identity is the authenticated caller of a request.
type identity struct {
	Email   string
	Subject string
	Admin   bool
}

// tokenVerifier validates a raw ID token and returns its identity.
type tokenVerifier func(ctx context.Context, rawIDToken string) (identity, error)

func oidcVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (identity, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return identity{}, err
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return identity{}, fmt.Errorf("failed to parse claims: %w", err)
		}
		return identity{Email: claims.Email, Subject: idToken.Subject}, nil
	}
}

func (s *Server) authenticateToken(ctx context.Context, token string) (identity, error) {
	var errs []error
	for providerName, verifier := range s.oidcVerifiers {
		id, err := verifier(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %v", providerName, err))
	}
	if len(errs) > 0 {
		return identity{}, errors.Join(errs...)
	}
	return identity{}, errors.New("no valid audiences configured or token invalid")
}

// authMiddleware requires a bearer ID token on every API request unless
// authentication is disabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.WithAttrs(ctx, slog.String("reqPath", r.URL.Path))

		var id identity
		if s.bypassAuth {
			id = identity{Admin: true}
		} else {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
				writeJSONError(w, "invalid auth header", http.StatusBadRequest)
				return
			}
			var err error
			id, err = s.authenticateToken(ctx, token)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
				writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
				return
			}
			id.Admin = id.Email != "" && slices.Contains(s.adminEmails, id.Email)
			ctx = log.WithAttrs(ctx, slog.String("authSubject", id.Subject))
		}

		log.Ctx(ctx).DebugContext(
			ctx,
			"authenticated request",
			slog.String("email", id.Email),
			slog.Bool("admin", id.Admin),
		)
		ctx = context.WithValue(ctx, identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getIdentity(r *http.Request) identity {
	if id, ok := r.Context().Value(identityContextKey).(identity); ok {
		return id
	}
	return identity{}
}

// requireAdmin only lets admins through to handlers that change stored data.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !getIdentity(r).Admin {
			log.Ctx(r.Context()).WarnContext(r.Context(), "non-admin tried to change data")
			writeJSONError(w, "admin access required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
