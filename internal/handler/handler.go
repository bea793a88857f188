package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"badger/bakery-api/internal/service"
	"badger/bakery-api/internal/service/ratelimit"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Deps are the process-scoped objects shared by every request.
type Deps struct {
	Orders    *service.OrderService
	Catalog   *service.Catalog
	Identity  *service.IdentityResolver
	Limiter   ratelimit.Limiter
	ImagesDir string
	Logger    *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type Handler struct {
	router *chi.Mux

	orders    *service.OrderService
	catalog   *service.Catalog
	identity  *service.IdentityResolver
	limiter   ratelimit.Limiter
	imagesDir string
	logger    *slog.Logger
	now       func() time.Time

	throttleLog rate.Sometimes
	gates       []gate
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		router:      chi.NewRouter(),
		orders:      deps.Orders,
		catalog:     deps.Catalog,
		identity:    deps.Identity,
		limiter:     deps.Limiter,
		imagesDir:   deps.ImagesDir,
		logger:      deps.Logger,
		now:         deps.Now,
		throttleLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.gates = []gate{h.preflightGate, h.identityGate, h.rateGate}

	compressor := middleware.NewCompressor(5, "application/json")
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})

	// Middleware
	h.router.Use(middleware.RealIP)
	h.router.Use(requestID)
	h.router.Use(h.accessLog)
	h.router.Use(cors)
	h.router.Use(h.supervisor)
	h.router.Use(compressor.Handler)
	h.router.Use(h.runGates)

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.router.Route("/api/bakery", func(r chi.Router) {
		r.Get("/items", h.GetItems)
		r.Get("/images/{name}", h.GetImage)
		r.Get("/order", h.GetOrders)
		r.Post("/order", h.PostOrder)
	})
	h.router.NotFound(h.notFound)
	h.router.MethodNotAllowed(h.notFound)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeMsg(w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
}
