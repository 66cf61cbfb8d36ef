package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ActorHeader carries the id of the teacher or grader making a request.
// Authentication happens upstream; this service only authorizes.
const ActorHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Handler exposes the attempt lifecycle as JSON endpoints.
type Handler struct {
	service  *app.AttemptService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(service *app.AttemptService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Routes mounts every attempt endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/exams/{examID}", func(r chi.Router) {
		r.Post("/attempts", h.startAttempt)
		r.Get("/attempts", h.listAttempts)
		r.Get("/events", h.eventsSince)
	})
	r.Route("/attempts/{attemptID}", func(r chi.Router) {
		r.Get("/", h.getAttempt)
		r.Get("/review", h.getReview)
		r.Post("/penalties", h.recordPenalty)
		r.Put("/answers/{questionID}", h.saveDraft)
		r.Post("/submit", h.submit)
		r.Post("/grade", h.grade)
		r.Post("/extra-time", h.grantExtraTime)
		r.Post("/forgive-life", h.forgiveLife)
	})
}

type startRequest struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email,max=320"`
}

type penaltyRequest struct {
	Type string `json:"type" validate:"max=100"`
}

type draftRequest struct {
	Value json.RawMessage `json:"value"`
}

type answerDTO struct {
	QuestionID string          `json:"questionId" validate:"required"`
	Value      json.RawMessage `json:"value"`
}

type submitRequest struct {
	Answers []answerDTO `json:"answers" validate:"dive"`
}

type gradeDTO struct {
	QuestionID string  `json:"questionId" validate:"required"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback" validate:"max=10000"`
}

type gradeRequest struct {
	Grades   []gradeDTO `json:"grades" validate:"dive"`
	Finalize bool       `json:"finalize"`
}

type extraTimeRequest struct {
	Seconds int `json:"seconds"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	attempt, err := h.service.Start(r.Context(), chi.URLParam(r, "examID"), domain.StudentIdentity{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListExamAttempts(r.Context(), actor(r), chi.URLParam(r, "examID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) eventsSince(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "since must be an RFC 3339 timestamp", Code: domain.KindValidation.String()})
			return
		}
		since = parsed
	}
	events, err := h.service.EventsSince(r.Context(), actor(r), chi.URLParam(r, "examID"), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.AttemptEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetAttemptSummary(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.GetReview(r.Context(), actor(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) recordPenalty(w http.ResponseWriter, r *http.Request) {
	var req penaltyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.RecordPenalty(r.Context(), chi.URLParam(r, "attemptID"), req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !h.decode(w, r, &req) {
		return
	}
	answer, err := h.service.SaveDraftAnswer(r.Context(), chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	answers := make([]domain.AnswerSubmission, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, domain.AnswerSubmission{QuestionID: a.QuestionID, Value: a.Value})
	}
	attempt, err := h.service.Submit(r.Context(), chi.URLParam(r, "attemptID"), answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) grade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	grades := make([]domain.QuestionGrade, 0, len(req.Grades))
	for _, g := range req.Grades {
		grades = append(grades, domain.QuestionGrade{QuestionID: g.QuestionID, Score: g.Score, Feedback: g.Feedback})
	}
	attempt, err := h.service.Grade(r.Context(), actor(r), chi.URLParam(r, "attemptID"), grades, req.Finalize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) grantExtraTime(w http.ResponseWriter, r *http.Request) {
	var req extraTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	attempt, err := h.service.GrantExtraTime(r.Context(), actor(r), chi.URLParam(r, "attemptID"), req.Seconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) forgiveLife(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.ForgiveLife(r.Context(), actor(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// decode reads and validates a JSON body. An empty body decodes to the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, domain.ErrPayloadTooLarge)
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed JSON body", Code: domain.KindValidation.String()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: domain.KindValidation.String()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(err, kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	msg := err.Error()
	if kind == domain.KindUnknown {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: kind.String()})
}

func statusFor(err error, kind domain.Kind) int {
	if errors.Is(err, domain.ErrPayloadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func actor(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}
