package triage

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"symptom-triage/internal/assistant"
	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
	"symptom-triage/internal/prediction"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages serves the server-rendered triage page. Every interaction is a plain
// form post that re-renders the page.
type Pages struct {
	svc       *Service
	templates *template.Template
	logger    *zap.Logger
}

func NewPages(svc *Service, logger *zap.Logger) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{svc: svc, templates: tmpl, logger: logger}, nil
}

type pageData struct {
	Snapshot
	Notice string
}

func pagePath(id uuid.UUID) string {
	return "/sessions/" + id.String()
}

func (p *Pages) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.templates.ExecuteTemplate(w, "page.html", data); err != nil {
		p.logger.Error("failed to render page", zap.Error(err))
	}
}

// pageSession resolves {id}; unknown or malformed ids start over at /.
func (p *Pages) pageSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err == nil {
		if _, err = p.svc.Get(id); err == nil {
			return id, true
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return uuid.Nil, false
}

func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	s, err := p.svc.Open()
	if err != nil {
		p.logger.Error("failed to open session", zap.Error(err))
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, pagePath(s.ID), http.StatusSeeOther)
}

func (p *Pages) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := p.pageSession(w, r)
	if !ok {
		return
	}
	snap, err := p.svc.Snapshot(id)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	p.render(w, http.StatusOK, pageData{Snapshot: snap})
}

func (p *Pages) Predict(w http.ResponseWriter, r *http.Request) {
	id, ok := p.pageSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var checked []catalog.SymptomID
	for _, v := range r.PostForm["symptom"] {
		checked = append(checked, catalog.SymptomID(v))
	}
	status := http.StatusOK
	var notice string
	if err := p.svc.ApplyForm(id, checked); err != nil {
		status, notice = statusFor(err), err.Error()
	} else {
		attrs := prediction.Attributes{Age: r.PostFormValue("age"), Gender: r.PostFormValue("gender")}
		_, err := p.svc.Submit(r.Context(), id, attrs)
		switch {
		case err == nil:
		case errors.Is(err, form.ErrInsufficientSymptoms), errors.Is(err, prediction.ErrRequestFailed):
			// Already in the result region.
			status = statusFor(err)
		default:
			status, notice = statusFor(err), err.Error()
		}
	}

	snap, err := p.svc.Snapshot(id)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	p.render(w, status, pageData{Snapshot: snap, Notice: notice})
}

func (p *Pages) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := p.pageSession(w, r)
	if !ok {
		return
	}
	if err := p.svc.Reset(id); err != nil {
		p.logger.Warn("reset failed", zap.Error(err))
	}
	http.Redirect(w, r, pagePath(id), http.StatusSeeOther)
}

// Say posts a chat reply and waits for the assistant's answer so the
// redirected page already shows it.
func (p *Pages) Say(w http.ResponseWriter, r *http.Request) {
	id, ok := p.pageSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	err := p.svc.Say(r.Context(), id, r.PostFormValue("text"), true)
	if err != nil && !errors.Is(err, assistant.ErrEmptyMessage) {
		p.logger.Warn("assistant reply failed", zap.Error(err))
	}
	http.Redirect(w, r, pagePath(id)+"#assistant", http.StatusSeeOther)
}

func (p *Pages) ToggleAssistant(w http.ResponseWriter, r *http.Request) {
	id, ok := p.pageSession(w, r)
	if !ok {
		return
	}
	if _, err := p.svc.ToggleAssistant(id); err != nil {
		p.logger.Warn("assistant toggle failed", zap.Error(err))
	}
	http.Redirect(w, r, pagePath(id), http.StatusSeeOther)
}

// RegisterPages mounts the HTML routes at the router root.
func RegisterPages(r chi.Router, p *Pages) {
	r.Get("/", p.Index)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", p.Show)
		r.Post("/predict", p.Predict)
		r.Post("/reset", p.Reset)
		r.Post("/assistant", p.Say)
		r.Post("/assistant/toggle", p.ToggleAssistant)
	})
}
