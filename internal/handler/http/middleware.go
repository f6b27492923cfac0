package http

import (
	"net/http"
	"strings"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/identity"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/service"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that are not JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// actorFrom builds the service actor from the claims Auth stored.
func actorFrom(r *http.Request) service.Actor {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}
	}
	return service.Actor{
		UserID: claims.SubjectID,
		Admin:  claims.Role == identity.RoleAdmin,
	}
}
