package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/errors"
)

// OrganizationHeader selects the tenant a scoped request operates in.
const OrganizationHeader = "X-Organization-Id"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyUserID
	ctxKeyActor
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func userIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(int64)
	return id, ok
}

func actorFrom(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(ctxKeyActor).(policy.Actor)
	return actor, ok
}

// requireUser verifies the bearer token and stores the user ID in the
// request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			h.writeError(w, r, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			h.writeError(w, r, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		userID, err := h.app.Auth.VerifyAccessToken(parts[1])
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireActor resolves the organization header against the authenticated
// user's memberships and stores the actor in the request context.
func (h *Handler) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			h.writeError(w, r, errors.Unauthorized(""))
			return
		}

		raw := strings.TrimSpace(r.Header.Get(OrganizationHeader))
		if raw == "" {
			h.writeError(w, r, errors.Validation(OrganizationHeader+" header is required"))
			return
		}
		organizationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || organizationID <= 0 {
			h.writeError(w, r, errors.Validation(OrganizationHeader+" header must be a positive integer"))
			return
		}

		actor, err := h.app.Orgs.ResolveActor(r.Context(), organizationID, userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
