package app

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/napomni/napomni/internal/config"
	"github.com/napomni/napomni/internal/rest"
	"github.com/napomni/napomni/pkg/user"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Tag every request with an id so log lines of one request correlate.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			requestID := uuid.NewString()
			w.Header().Set("X-Request-Id", requestID)
			log.WithField("requestId", requestID).Debugf("%s %s", req.Method, req.URL.Path)
			next.ServeHTTP(w, req)
		})
	})

	// Resolve the platform identity headers into a user record. Platform
	// gateways authenticate the chat user and forward the raw ids here.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ref := user.PlatformRef{
				TelegramID: headerID(req, "X-Telegram-Id"),
				MaxID:      headerID(req, "X-Max-Id"),
			}
			ctx := req.Context()

			if !ref.IsZero() {
				u, err := deps.UserService.Upsert(ctx, user.User{
					TelegramID:   ref.TelegramID,
					MaxID:        ref.MaxID,
					Username:     req.Header.Get("X-Username"),
					FirstName:    req.Header.Get("X-First-Name"),
					LastName:     req.Header.Get("X-Last-Name"),
					LanguageCode: req.Header.Get("X-Language-Code"),
				})
				if err != nil {
					log.Errorf("failed to resolve platform user %+v: %v", ref, err)
					rest.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				ctx = user.WithUser(ctx, u)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
}

func headerID(req *http.Request, name string) int64 {
	raw := req.Header.Get(name)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Debugf("ignoring malformed %s header: %q", name, raw)
		return 0
	}
	return id
}
