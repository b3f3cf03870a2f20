package triage

import (
	"encoding/json"
	"errors"
	"net/http"

	"symptom-triage/internal/assistant"
	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 64 << 10

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type SymptomRequest struct {
	Checked bool `json:"checked"`
}

type PredictRequest struct {
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Result *result.View `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, form.ErrUnknownSymptom):
		return http.StatusNotFound
	case errors.Is(err, form.ErrInsufficientSymptoms):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrSubmissionSuperseded):
		return http.StatusConflict
	case errors.Is(err, prediction.ErrRequestFailed):
		return http.StatusBadGateway
	case errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, result.ErrNothingToReport):
		return http.StatusConflict
	case errors.Is(err, result.ErrFontUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Open()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshot())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Close(id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetSymptom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SymptomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	controls, err := h.svc.SetSymptom(id, catalog.SymptomID(chi.URLParam(r, "symptom")), req.Checked)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"controls": controls})
}

func (h *Handler) ToggleSymptom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	controls, err := h.svc.ToggleSymptom(id, catalog.SymptomID(chi.URLParam(r, "symptom")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"controls": controls})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.svc.Submit(r.Context(), id, prediction.Attributes{Age: req.Age, Gender: req.Gender})
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		if view.Kind != "" {
			resp.Result = &view
			resp.Error = view.Message
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Reset(id); err != nil {
		h.fail(w, err)
		return
	}
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ResultPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	pdf, err := h.svc.Report(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="triage-result.pdf"`)
	w.Write(pdf)
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wait := r.URL.Query().Get("wait") == "true"
	if err := h.svc.Say(r.Context(), id, req.Text, wait); err != nil {
		h.fail(w, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		return
	}
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Assistant)
}

func (h *Handler) ToggleAssistant(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	visible, err := h.svc.ToggleAssistant(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": visible})
}

func (h *Handler) StreamAssistant(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	chat, err := h.svc.Assistant(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	assistant.ServeSSE(w, r, chat)
}

func (h *Handler) AssistantSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	chat, err := h.svc.Assistant(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	assistant.ServeWS(w, r, chat, h.logger)
}

// RegisterRoutes mounts the JSON API; callers usually nest it under /api.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Put("/symptoms/{symptom}", h.SetSymptom)
		r.Post("/symptoms/{symptom}/toggle", h.ToggleSymptom)
		r.Post("/predict", h.Predict)
		r.Post("/reset", h.Reset)
		r.Get("/result.pdf", h.ResultPDF)
		r.Post("/assistant/messages", h.PostMessage)
		r.Post("/assistant/toggle", h.ToggleAssistant)
		r.Get("/assistant/stream", h.StreamAssistant)
		r.Get("/assistant/ws", h.AssistantSocket)
	})
}
