package middleware

import (
	"context"
	"net/http"
	"strings"
)

// OwnerHeader names the acting owner of a request. There is no
// authentication: the header is trusted as given.
const OwnerHeader = "X-Owner-ID"

const maxOwnerLen = 128

type ownerKeyType string

const OwnerIDKey ownerKeyType = "owner_id"

// Owner requires the owner header and stores it in the request context.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+OwnerHeader+" header")
			return
		}
		if len(id) > maxOwnerLen {
			writeError(w, http.StatusBadRequest, "invalid", OwnerHeader+" too long")
			return
		}
		ctx := context.WithValue(r.Context(), OwnerIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOwnerID returns the owner id from context.
func GetOwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(OwnerIDKey).(string); ok {
		return v
	}
	return ""
}
