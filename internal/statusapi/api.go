// Package statusapi exposes the keep-alive endpoint and a small ops API for
// reading and toggling cabinet tracking.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/wbtrack/internal/authmw"
	"github.com/linnemanlabs/wbtrack/internal/postgres"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

// KeepAliveText is served on GET / for uptime probes.
const KeepAliveText = "wbtrack is running"

// Tracker is the part of tracking.Registry the API needs.
type Tracker interface {
	Toggle(ctx context.Context, owner tracking.OwnerID, name string) (bool, error)
	IsTracking(owner tracking.OwnerID, cabinet string) bool
	Jobs() []tracking.JobHandle
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	records *tracking.Records
	tracker Tracker
	token   string
}

// New creates a new API handler. token guards /api/v1; empty disables auth.
func New(logger log.Logger, records *tracking.Records, tracker Tracker, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if records == nil {
		panic(xerrors.New("records are required"))
	}
	if tracker == nil {
		panic(xerrors.New("tracker is required"))
	}
	return &API{
		logger:  logger,
		records: records,
		tracker: tracker,
		token:   token,
	}
}

// CabinetView is the public shape of a cabinet. API keys are never exposed.
type CabinetView struct {
	Name      string `json:"name"`
	Tracking  bool   `json:"tracking"`
	ActiveJob bool   `json:"active_job"`
	Campaigns int    `json:"campaigns"`
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.handleKeepAlive)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authmw.BearerToken(a.token))
		r.Get("/jobs", a.handleListJobs)
		r.Get("/owners/{owner}/cabinets", a.handleListCabinets)
		r.Post("/owners/{owner}/cabinets/{name}/tracking/toggle", a.handleToggle)
	})
}

func (a *API) handleKeepAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(KeepAliveText))
}

func (a *API) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": a.tracker.Jobs()})
}

func (a *API) handleListCabinets(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathParam(w, r, "owner")
	if !ok {
		return
	}
	ctx := postgres.WithOperation(r.Context(), "api")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("wbtrack.owner", owner))

	rec, err := a.records.Get(ctx, tracking.OwnerID(owner))
	if err != nil {
		a.logger.Error(ctx, err, "failed to load owner record", "owner", owner)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]CabinetView, 0, len(rec.Cabinets))
	for _, c := range rec.Cabinets {
		out = append(out, CabinetView{
			Name:      c.Name,
			Tracking:  rec.Tracking[c.Name],
			ActiveJob: a.tracker.IsTracking(tracking.OwnerID(owner), c.Name),
			Campaigns: len(rec.CampaignStates[c.Name]),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "cabinets": out})
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathParam(w, r, "owner")
	if !ok {
		return
	}
	name, ok := pathParam(w, r, "name")
	if !ok {
		return
	}
	ctx := postgres.WithOperation(r.Context(), "api")

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("wbtrack.owner", owner),
		attribute.String("wbtrack.cabinet", name),
	)

	on, err := a.tracker.Toggle(ctx, tracking.OwnerID(owner), name)
	if errors.Is(err, tracking.ErrCabinetNotFound) {
		writeError(w, http.StatusNotFound, "cabinet not found")
		return
	}
	if err != nil {
		a.logger.Error(ctx, err, "failed to toggle tracking", "owner", owner, "cabinet", name)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(attribute.Bool("wbtrack.tracking", on))
	a.logger.Info(ctx, "tracking toggled via api", "owner", owner, "cabinet", name, "tracking", on)
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "cabinet": name, "tracking": on})
}

func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, "invalid "+key)
		return "", false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
