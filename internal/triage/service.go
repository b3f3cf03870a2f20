package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"symptom-triage/internal/assistant"
	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
	"symptom-triage/internal/platform/observability"
	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSubmissionInFlight   = errors.New("a prediction is already in progress")
	ErrSubmissionSuperseded = errors.New("prediction discarded after reset")
)

// Prediction outcomes as recorded in metrics.
const (
	outcomeSuccess      = "success"
	outcomeFailed       = "failed"
	outcomeInsufficient = "insufficient"
	outcomeInFlight     = "in_flight"
	outcomeSuperseded   = "superseded"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Repository Repository
	Catalog    *catalog.Catalog
	Predictor  prediction.Predictor
	Presenter  *result.Presenter
	Report     *result.Report
	Script     assistant.Script
	Timing     assistant.Timing
	Metrics    *observability.Collector
	Logger     *zap.Logger
}

type Service struct {
	repo      Repository
	catalog   *catalog.Catalog
	validator *form.Validator
	predictor prediction.Predictor
	presenter *result.Presenter
	report    *result.Report
	script    assistant.Script
	timing    assistant.Timing
	metrics   *observability.Collector
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if err := d.Script.Validate(); err != nil {
		return nil, err
	}
	if d.Repository == nil {
		d.Repository = NewMemoryRepository()
	}
	if d.Presenter == nil {
		d.Presenter = result.NewPresenter("")
	}
	if d.Report == nil {
		d.Report = result.NewReport(nil)
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewCollector("triage")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		repo:      d.Repository,
		catalog:   d.Catalog,
		validator: form.NewValidator(d.Catalog),
		predictor: d.Predictor,
		presenter: d.Presenter,
		report:    d.Report,
		script:    d.Script,
		timing:    d.Timing,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       time.Now,
	}, nil
}

// Open creates a session: the form is rendered once and the assistant
// greets the user.
func (svc *Service) Open() (*Session, error) {
	chat, err := assistant.NewSession(svc.script, assistant.SessionOptions{
		Timing: svc.timing,
		Logger: svc.logger.Named("assistant"),
		OnBranch: func(b assistant.Branch) {
			svc.metrics.ObserveAssistantReply(string(b))
		},
	})
	if err != nil {
		return nil, err
	}

	now := svc.now()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		form:      form.New(svc.catalog),
		lastSeen:  now,
		assistant: chat,
	}
	s.form.Init()

	svc.repo.Save(s)
	svc.metrics.OpenSessions.Inc()
	svc.logger.Info("session opened", zap.String("session", s.ID.String()))
	return s, nil
}

// Get returns an open session and marks it as active.
func (svc *Service) Get(id uuid.UUID) (*Session, error) {
	s, err := svc.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	s.touch(svc.now())
	return s, nil
}

func (svc *Service) Snapshot(id uuid.UUID) (Snapshot, error) {
	s, err := svc.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Close discards a session and stops its assistant.
func (svc *Service) Close(id uuid.UUID) error {
	s, ok := svc.repo.Delete(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.assistant.Close()
	svc.metrics.OpenSessions.Dec()
	svc.logger.Info("session closed", zap.String("session", id.String()))
	return nil
}

// Sweep closes sessions idle for longer than maxIdle.
func (svc *Service) Sweep(maxIdle time.Duration) int {
	closed := 0
	for _, s := range svc.repo.IdleSince(svc.now().Add(-maxIdle)) {
		if err := svc.Close(s.ID); err == nil {
			closed++
		}
	}
	return closed
}

// SetSymptom applies one control toggle.
func (svc *Service) SetSymptom(id uuid.UUID, symptom catalog.SymptomID, checked bool) ([]form.Control, error) {
	s, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.form.Selection().Set(symptom, checked); err != nil {
		return nil, err
	}
	s.form.Init()
	return s.form.Controls(), nil
}

// ToggleSymptom flips one control.
func (svc *Service) ToggleSymptom(id uuid.UUID, symptom catalog.SymptomID) ([]form.Control, error) {
	s, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.form.Selection().Toggle(symptom); err != nil {
		return nil, err
	}
	s.form.Init()
	return s.form.Controls(), nil
}

// ApplyForm makes the selection match a submitted HTML form: listed symptoms
// are checked, all others unchecked. Nothing changes if any id is unknown.
func (svc *Service) ApplyForm(id uuid.UUID, checked []catalog.SymptomID) error {
	s, err := svc.Get(id)
	if err != nil {
		return err
	}
	for _, sym := range checked {
		if !svc.catalog.Contains(sym) {
			return fmt.Errorf("%w: %q", form.ErrUnknownSymptom, sym)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := s.form.Selection()
	sel.Reset()
	for _, sym := range checked {
		_ = sel.Set(sym, true)
	}
	s.form.Init()
	return nil
}

// Submit validates the selection and, if it passes, asks the predictor. The
// resulting view, warning or failure replaces the result region and is
// returned alongside any error.
func (svc *Service) Submit(ctx context.Context, id uuid.UUID, attrs prediction.Attributes) (result.View, error) {
	s, err := svc.Get(id)
	if err != nil {
		return result.View{}, err
	}
	logger := svc.logger.With(zap.String("session", id.String()))

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		svc.metrics.ObservePrediction(outcomeInFlight, 0)
		return result.View{}, ErrSubmissionInFlight
	}
	s.attrs = attrs
	valid, err := svc.validator.Validate(s.form.Selection())
	if err != nil {
		if errors.Is(err, form.ErrInsufficientSymptoms) {
			view := svc.presenter.Warn(form.InsufficientSymptomsWarning)
			s.result = &view
			s.mu.Unlock()
			svc.metrics.ObservePrediction(outcomeInsufficient, 0)
			return view, err
		}
		s.mu.Unlock()
		return result.View{}, err
	}
	s.inFlight = true
	gen := s.generation
	req := prediction.NewRequest(valid, attrs)
	s.mu.Unlock()

	start := time.Now()
	resp, err := svc.predictor.Predict(ctx, req)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	var view result.View
	outcome := outcomeSuccess
	if err != nil {
		if !errors.Is(err, prediction.ErrRequestFailed) {
			err = &prediction.RequestError{Op: "send", Err: err}
		}
		view = svc.presenter.Fail(err)
		outcome = outcomeFailed
		logger.Warn("prediction failed", zap.Error(err), zap.Duration("elapsed", elapsed))
	} else {
		view = svc.presenter.Present(resp)
		logger.Info("prediction rendered",
			zap.String("prediction", resp.Prediction),
			zap.Int("symptoms", len(req.Symptoms)),
			zap.Duration("elapsed", elapsed),
		)
	}

	// After a Reset the flag belongs to whichever submission came next.
	if gen != s.generation {
		svc.metrics.ObservePrediction(outcomeSuperseded, elapsed)
		return view, ErrSubmissionSuperseded
	}
	s.inFlight = false
	svc.metrics.ObservePrediction(outcome, elapsed)
	s.result = &view
	if err == nil {
		s.reported = valid.Symptoms()
	}
	return view, err
}

// Reset unchecks every symptom and clears the result region. A submission
// still in flight is abandoned and its response discarded.
func (svc *Service) Reset(id uuid.UUID) error {
	s, err := svc.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.Selection().Reset()
	s.form.Init()
	s.result = nil
	s.reported = nil
	s.attrs = prediction.Attributes{}
	s.inFlight = false
	s.generation++
	return nil
}

// Say hands a user reply to the session's assistant. With wait set it
// returns after the scripted answer has been emitted.
func (svc *Service) Say(ctx context.Context, id uuid.UUID, text string, wait bool) error {
	s, err := svc.Get(id)
	if err != nil {
		return err
	}
	if wait {
		return s.assistant.SendAndWait(ctx, text)
	}
	_, err = s.assistant.Send(ctx, text)
	return err
}

func (svc *Service) ToggleAssistant(id uuid.UUID) (bool, error) {
	s, err := svc.Get(id)
	if err != nil {
		return false, err
	}
	return s.assistant.ToggleVisibility(), nil
}

// Assistant exposes a session's chat for streaming transports.
func (svc *Service) Assistant(id uuid.UUID) (*assistant.Session, error) {
	s, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	return s.assistant, nil
}

// Report renders the current prediction as a PDF.
func (svc *Service) Report(id uuid.UUID) ([]byte, error) {
	s, err := svc.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.result == nil {
		s.mu.Unlock()
		return nil, result.ErrNothingToReport
	}
	data := result.ReportData{
		View:        *s.result,
		Age:         s.attrs.Age,
		Gender:      s.attrs.Gender,
		GeneratedAt: svc.now(),
	}
	for _, sym := range s.reported {
		data.Symptoms = append(data.Symptoms, catalog.Label(sym))
	}
	s.mu.Unlock()

	return svc.report.Render(data)
}
