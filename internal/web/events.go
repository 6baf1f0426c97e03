package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"taskcal/internal/ics"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/planner"
	"taskcal/internal/recurrence"
)

// candidateRequest is the body of create and edit calls. AllowOverlap is set
// when the user confirmed the conflict prompt.
type candidateRequest struct {
	planner.Candidate
	AllowOverlap bool `json:"allowOverlap"`
}

type moveRequest struct {
	Date         string `json:"date"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	AllowOverlap bool   `json:"allowOverlap"`
}

type previewRequest struct {
	Date      string               `json:"date"`
	StartTime string               `json:"startTime"`
	Rule      model.RecurrenceRule `json:"recurrenceRule"`
}

type eventsResponse struct {
	Events []model.Occurrence `json:"events"`
}

type undoResponse struct {
	Pending   bool      `json:"pending"`
	Kind      string    `json:"kind,omitempty"`
	Label     string    `json:"label,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func events(occs []model.Occurrence) eventsResponse {
	if occs == nil {
		occs = []model.Occurrence{}
	}
	return eventsResponse{Events: occs}
}

func scopeParam(w http.ResponseWriter, r *http.Request) (planner.Scope, bool) {
	scope, ok := planner.ParseScope(r.URL.Query().Get("scope"))
	if !ok {
		writeError(w, http.StatusBadRequest, "scope must be single or all")
	}
	return scope, ok
}

// handleListEvents returns every occurrence, or those between from and to.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		writeJSON(w, http.StatusOK, events(s.planner.All()))
		return
	}
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to must be given together")
		return
	}
	occs, err := s.planner.Range(from, to)
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events(occs))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	occ, err := s.planner.Get(r.PathValue("id"))
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	occs, err := s.planner.Create(r.Context(), req.Candidate, planner.Options{AllowOverlap: req.AllowOverlap})
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, events(occs))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	var req candidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	occs, err := s.planner.Edit(r.Context(), r.PathValue("id"), req.Candidate, scope, planner.Options{AllowOverlap: req.AllowOverlap})
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events(occs))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	removed, err := s.planner.Delete(r.Context(), r.PathValue("id"), scope)
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events(removed))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	occ, err := s.planner.ToggleCompleted(r.Context(), r.PathValue("id"))
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

// handleMove is the calendar grid drag/drop target.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	occ, err := s.planner.Move(r.Context(), r.PathValue("id"), req.Date, req.StartTime, req.EndTime, planner.Options{AllowOverlap: req.AllowOverlap})
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	occs, err := s.planner.Day(r.PathValue("date"))
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events(occs))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.planner.Feed(q.Get("from"), q.Get("to"))
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	if items == nil {
		items = []planner.FeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handlePendingUndo(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.planner.PendingUndo()
	if !ok {
		writeJSON(w, http.StatusOK, undoResponse{})
		return
	}
	writeJSON(w, http.StatusOK, undoResponse{
		Pending:   true,
		Kind:      string(rec.Action.Kind),
		Label:     rec.Action.Label,
		ExpiresAt: rec.ExpiresAt,
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	a, ok, err := s.planner.Undo(r.Context())
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "nothing to undo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"undone": true, "kind": a.Kind, "label": a.Label})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pv, err := s.planner.Preview(req.Date, req.StartTime, req.Rule)
	if err != nil {
		msg := "Please complete recurring event settings"
		if errors.Is(err, recurrence.ErrNoOccurrences) {
			msg = "No valid recurring dates were generated"
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"recurring": msg},
		})
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body, err := s.planner.ExportCalendar(q.Get("from"), q.Get("to"))
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="taskcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	occs, err := s.planner.ImportCalendar(r.Context(), body)
	if errors.Is(err, ics.ErrInvalidCalendar) {
		appLog.Warn("api import rejected", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writePlannerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events(occs))
}
