package floor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/studiospace/plankit/internal/auth"
	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/loader"
	"github.com/studiospace/plankit/internal/plan"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the floor endpoints on r. Writes go through protect.
func (h *Handler) Routes(r *mux.Router, protect mux.MiddlewareFunc) {
	r.HandleFunc("/floors", h.List).Methods("GET")
	r.HandleFunc("/floors/{floorId}", h.Get).Methods("GET")
	r.HandleFunc("/floors/{floorId}/hit", h.HitTest).Methods("GET")
	r.HandleFunc("/floors/{floorId}/transform", h.SetTransform).Methods("PUT")
	r.HandleFunc("/floors/{floorId}/load", h.Load).Methods("POST")

	protected := r.NewRoute().Subrouter()
	protected.Use(protect)
	protected.HandleFunc("/floors/{floorId}", h.Import).Methods("PUT")
	protected.HandleFunc("/floors/{floorId}/spaces/{spaceId}/edits", h.Edit).Methods("POST")
}

type hitResponse struct {
	SpaceID   *string           `json:"spaceId"`
	SampleSeq uint64            `json:"sampleSeq"`
	Stats     engine.QueryStats `json:"stats"`
}

type editRequest struct {
	Ops []json.RawMessage `json:"ops"`
}

type editResponse struct {
	Commit    editor.Commit `json:"commit"`
	Version   uint64        `json:"version"`
	SinkError string        `json:"sinkError,omitempty"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	floorID := mux.Vars(r)["floorId"]

	view, err := h.service.Get(floorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Load starts a reload. With ?wait=true it blocks until the load finishes.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	floorID := mux.Vars(r)["floorId"]

	done := h.service.Load(floorID)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "loading"})
		return
	}

	select {
	case err := <-done:
		if err != nil {
			handleServiceError(w, err)
			return
		}
		view, err := h.service.Get(floorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view.Summary)
	case <-r.Context().Done():
	}
}

func (h *Handler) HitTest(w http.ResponseWriter, r *http.Request) {
	floorID := mux.Vars(r)["floorId"]
	q := r.URL.Query()

	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x and y are required numbers"})
		return
	}
	sample := engine.Sample{X: x, Y: y}
	if ts := q.Get("t"); ts != "" {
		v, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "t must be an integer"})
			return
		}
		sample.TimestampMs = v
	}

	var t *engine.Transform
	if q.Has("scale") {
		parsed, err := parseTransform(q.Get("scale"), q.Get("tx"), q.Get("ty"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		t = &parsed
	}

	res, err := h.service.HitTest(floorID, sample, t)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := hitResponse{SampleSeq: res.Seq, Stats: res.Stats}
	if !res.None() {
		out.SpaceID = &res.SpaceID
	}
	writeJSON(w, http.StatusOK, out)
}

func parseTransform(scale, tx, ty string) (engine.Transform, error) {
	vals := [3]float64{}
	for i, s := range [...]string{scale, tx, ty} {
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return engine.Transform{}, fmt.Errorf("invalid transform component %q", s)
		}
		vals[i] = v
	}
	return engine.NewTransform(vals[0], vals[1], vals[2])
}

func (h *Handler) SetTransform(w http.ResponseWriter, r *http.Request) {
	floorID := mux.Vars(r)["floorId"]

	var req engine.Transform
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.service.SetTransform(floorID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	vars := mux.Vars(r)
	floorID, spaceID := vars["floorId"], vars["spaceId"]

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Ops) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ops are required"})
		return
	}

	ops := make([]editor.Op, 0, len(req.Ops))
	for i, raw := range req.Ops {
		op, err := decodeOp(raw)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": fmt.Sprintf("op %d: %v", i, err)})
			return
		}
		ops = append(ops, op)
	}

	res, err := h.service.Edit(r.Context(), floorID, spaceID, ops)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("space edited", "floor", floorID, "space", spaceID, "user", userID, "edit", res.Commit.EditID)
	out := editResponse{Commit: res.Commit, Version: res.Snapshot.Version}
	if res.SinkErr != nil {
		out.SinkError = res.SinkErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeOp decodes one edit operation. Replacement polygons are checked
// against the polygon schema first.
func decodeOp(raw json.RawMessage) (editor.Op, error) {
	var head struct {
		Type    string          `json:"type"`
		Polygon json.RawMessage `json:"polygon"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return editor.Op{}, err
	}
	if head.Type == editor.OpPolygonReplace {
		if err := plan.ValidatePolygonJSON(head.Polygon); err != nil {
			return editor.Op{}, err
		}
	}
	var op editor.Op
	if err := json.Unmarshal(raw, &op); err != nil {
		return editor.Op{}, err
	}
	return op, nil
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	floorID := mux.Vars(r)["floorId"]

	var f plan.Floor
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if f.ID == "" {
		f.ID = floorID
	}
	if f.ID != floorID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "floor id does not match path"})
		return
	}

	if _, err := h.service.Import(r.Context(), &f); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "loading"})
}

func handleServiceError(w http.ResponseWriter, err error) {
	var loadErr *loader.LoadError
	switch {
	case errors.Is(err, ErrNotLoaded), errors.Is(err, plan.ErrFloorNotFound), errors.Is(err, editor.ErrUnknownSpace):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidFloor), errors.Is(err, geometry.ErrInvalidPolygon),
		errors.Is(err, editor.ErrInvalidOp), errors.Is(err, editor.ErrVertexIndex),
		errors.Is(err, engine.ErrInvalidTransform):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, editor.ErrSessionActive), errors.Is(err, engine.ErrStaleSnapshot),
		errors.Is(err, loader.ErrSuperseded):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrImportDisabled):
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
	case errors.As(err, &loadErr):
		slog.Warn("floor load failed", "floor", loadErr.FloorID, "error", loadErr.Err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "floor load failed"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
