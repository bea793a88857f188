package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"badger/bakery-api/internal/model"
	"badger/bakery-api/internal/service"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const identityHeader = "X-CS571-ID"

type ctxKey int

const (
	identityKey ctxKey = iota
	bodyKey
)

// gate either passes the request on, possibly with an enriched context, or
// writes the final response itself and returns false.
type gate func(w http.ResponseWriter, r *http.Request) (*http.Request, bool)

func (h *Handler) runGates(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, g := range h.gates {
			var ok bool
			if r, ok = g(w, r); !ok {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) preflightGate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if r.Method != http.MethodOptions {
		return r, true
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.WriteHeader(http.StatusNoContent)
	return r, false
}

func (h *Handler) identityGate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if h.isImagePath(r.URL.Path) {
		return r, true
	}

	identity, err := h.identity.Resolve(r.Header.Get(identityHeader))
	switch {
	case errors.Is(err, service.ErrMissingIdentity):
		writeMsg(w, http.StatusUnauthorized, msgMissingIdentity)
		return r, false
	case err != nil:
		writeMsg(w, http.StatusUnauthorized, msgInvalidIdentity)
		return r, false
	}
	return r.WithContext(context.WithValue(r.Context(), identityKey, identity)), true
}

func (h *Handler) rateGate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		return r, true
	}

	now := h.now()
	decision, err := h.limiter.Admit(r.Context(), identity.Key(), now)
	if err != nil {
		h.logger.Error("rate limiter unavailable", "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.writeUnhandled(w, r)
		return r, false
	}

	header := w.Header()
	header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining()))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if !decision.Allowed {
		retry := int(math.Ceil(decision.ResetAt.Sub(now).Seconds()))
		header.Set("Retry-After", strconv.Itoa(max(retry, 0)))
		h.throttleLog.Do(func() {
			h.logger.Warn("request throttled", "label", identity.Label, "count", decision.Count)
		})
		writeMsg(w, http.StatusTooManyRequests, msgTooManyRequests)
		return r, false
	}
	return r, true
}

// isImagePath reports whether path ends in /images/<item>, ignoring case.
func (h *Handler) isImagePath(path string) bool {
	path = strings.ToLower(path)
	for _, name := range h.catalog.Names() {
		if strings.HasSuffix(path, "/images/"+name) {
			return true
		}
	}
	return false
}

func identityFrom(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "X-CS571-ID, Origin, X-Requested-With, Content-Type, Accept")
		next.ServeHTTP(w, r)
	})
}

// requestID seeds X-Request-Id with a uuid when the client sent none and
// lets chi's RequestID store it. The id is echoed on the response.
func requestID(next http.Handler) http.Handler {
	withID := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.RequestIDHeader) == "" {
			r = r.Clone(r.Context())
			r.Header.Set(middleware.RequestIDHeader, uuid.NewString())
		}
		withID.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.logger.Info("request",
			slog.String("date", start.UTC().Format("02/Jan/2006:15:04:05 -0700")),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("method", r.Method),
			slog.String("url", r.URL.RequestURI()),
			slog.Int("status", status),
			slog.String("label", h.identity.Label(r.Header.Get(identityHeader))),
			slog.Float64("ms", float64(time.Since(start).Microseconds())/1000),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// capturedBody holds the decoded request body for the unhandled-error echo.
type capturedBody struct {
	text string
}

// supervisor turns a panic anywhere below it into the generic unhandled
// response, echoing whatever body was decoded so far.
func (h *Handler) supervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := &capturedBody{}
		r = r.WithContext(context.WithValue(r.Context(), bodyKey, body))

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			h.logger.Error("panic while handling request",
				"panic", fmt.Sprint(rec),
				"request_id", middleware.GetReqID(r.Context()),
			)
			h.writeUnhandled(w, r)
		}()

		next.ServeHTTP(w, r)
	})
}

func captureBody(ctx context.Context, text string) {
	if body, ok := ctx.Value(bodyKey).(*capturedBody); ok {
		body.text = text
	}
}

func capturedBodyFrom(ctx context.Context) string {
	if body, ok := ctx.Value(bodyKey).(*capturedBody); ok && body.text != "" {
		return body.text
	}
	return "{}"
}
