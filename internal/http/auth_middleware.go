package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

type authInfo struct {
	BusinessID string
}

const contextKeyAuth authContextKey = "sitepress-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// TokenVerifier checks that an edit token grants access to a business.
type TokenVerifier interface {
	Verify(token, businessID string) error
}

type businessHandler func(w http.ResponseWriter, req *http.Request, businessID string)

// requireEditToken ensures the request carries an edit token for businessID
// before invoking the handler.
func (r *Router) requireEditToken(next businessHandler) businessHandler {
	return func(w http.ResponseWriter, req *http.Request, businessID string) {
		ctx, ok := r.ensureAuth(w, req, businessID)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx), businessID)
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request, businessID string) (context.Context, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "edit token required")
		return req.Context(), false
	}
	if r.tokens == nil {
		r.logger.Error("edit tokens not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authentication misconfigured")
		return req.Context(), false
	}
	if err := r.tokens.Verify(token, businessID); err != nil {
		r.logger.Warn("edit token rejected", "error", err, "business_id", businessID)
		writeError(w, http.StatusForbidden, "edit token does not grant access to this site")
		return req.Context(), false
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, authInfo{BusinessID: businessID})
	return ctx, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
