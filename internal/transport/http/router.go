// Package httptransport is the thin JSON/HTTP layer over the coordinator. It
// decodes requests, passes the authenticated actor through and maps coded
// errors to status codes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/export"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob"
	"github.com/chifamba/dzinza-sub004/internal/platform/auth"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// Coordinator is the subset of core.Service the API exposes.
type Coordinator interface {
	CreateFamilyTree(ctx context.Context, actorID string, in core.FamilyTreeInput) (core.FamilyTree, error)
	GetFamilyTree(ctx context.Context, treeID, actorID string) (core.FamilyTree, error)
	ListFamilyTrees(ctx context.Context, actorID string) ([]core.FamilyTree, error)
	AddCollaborator(ctx context.Context, treeID, actorID, userID string, role domain.CollaboratorRole) (core.FamilyTree, error)
	RemoveCollaborator(ctx context.Context, treeID, actorID, userID string) (core.FamilyTree, error)
	TreeDocument(ctx context.Context, treeID, actorID string) (core.TreeDocument, error)

	CreatePerson(ctx context.Context, treeID, actorID string, in core.PersonInput) (core.Person, error)
	GetPerson(ctx context.Context, treeID, actorID, personID string) (core.PersonDetails, error)
	ListPersons(ctx context.Context, treeID, actorID string) ([]core.Person, error)
	UpdatePerson(ctx context.Context, treeID, actorID, personID string, patch core.PersonPatch) (core.PersonDetails, error)
	DeletePerson(ctx context.Context, treeID, actorID, personID string) error

	CreateRelationship(ctx context.Context, treeID, actorID string, in core.RelationshipInput) (core.Relationship, error)
	ListRelationships(ctx context.Context, treeID, actorID, personID string) ([]core.Relationship, error)
	DeleteRelationship(ctx context.Context, treeID, actorID, relationshipID string) error
	DeleteRelationshipBetween(ctx context.Context, treeID, actorID, person1ID, person2ID string, t domain.RelationshipType) error
}

// Exports writes and lists tree exports.
type Exports interface {
	Export(ctx context.Context, treeID, actorID string) (export.Result, error)
	List(ctx context.Context, treeID, actorID string) ([]blob.Info, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	svc     Coordinator
	exports Exports
	tokens  auth.Validator
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithExports enables the export routes.
func WithExports(e Exports) Option {
	return func(h *Handler) { h.exports = e }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler returns a Handler. logger may be nil.
func NewHandler(svc Coordinator, tokens auth.Validator, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi router for all endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.tokens, h.logger))

		r.Get("/trees", h.listTrees)
		r.Post("/trees", h.createTree)
		r.Route("/trees/{treeID}", func(r chi.Router) {
			r.Get("/", h.getTree)
			r.Get("/document", h.treeDocument)
			r.Put("/collaborators/{userID}", h.putCollaborator)
			r.Delete("/collaborators/{userID}", h.deleteCollaborator)

			r.Get("/persons", h.listPersons)
			r.Post("/persons", h.createPerson)
			r.Get("/persons/{personID}", h.getPerson)
			r.Patch("/persons/{personID}", h.updatePerson)
			r.Delete("/persons/{personID}", h.deletePerson)
			r.Get("/persons/{personID}/relationships", h.listPersonRelationships)

			r.Get("/relationships", h.listRelationships)
			r.Post("/relationships", h.createRelationship)
			r.Delete("/relationships", h.deleteRelationshipBetween)
			r.Delete("/relationships/{relationshipID}", h.deleteRelationship)

			if h.exports != nil {
				r.Get("/exports", h.listExports)
				r.Post("/exports", h.createExport)
			}
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
