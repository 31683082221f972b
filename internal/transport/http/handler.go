package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/leaderboard"
)

// Handler exposes the attempt lifecycle and leaderboard reads over JSON HTTP.
type Handler struct {
	service *app.AttemptService
	board   *leaderboard.Engine
	ws      *WSHandler
	log     *zap.Logger
}

func NewHandler(service *app.AttemptService, board *leaderboard.Engine, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		board:   board,
		ws:      NewWSHandler(board, log),
		log:     log,
	}
}

// Routes builds the HTTP mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /attempts", h.startAttempt)
	mux.HandleFunc("GET /attempts/{id}", h.getAttempt)
	mux.HandleFunc("PUT /attempts/{id}/answers", h.submitAnswer)
	mux.HandleFunc("POST /attempts/{id}/submit", h.submitAttempt)
	mux.HandleFunc("GET /leaderboard/quizzes/{quizId}", h.quizLeaderboard)
	mux.HandleFunc("GET /leaderboard/global", h.globalLeaderboard)
	mux.HandleFunc("GET /ws/leaderboard", h.ws.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type startAttemptRequest struct {
	UserID string `json:"userId"`
	QuizID string `json:"quizId"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "userId and quizId are required")
		return
	}

	attempt, err := h.service.Start(r.Context(), req.UserID, req.QuizID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	view, err := h.service.GetAttempt(r.Context(), attempt.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetAttempt(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitAnswerRequest struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "questionId is required")
		return
	}

	if err := h.service.SubmitAnswer(r.Context(), id, req.QuestionID, req.SelectedOptionIDs); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Submit(r.Context(), id, false)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) quizLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.Get(r.Context(), leaderboard.ScopeQuiz, r.PathValue("quizId"), limitParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) globalLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.Get(r.Context(), leaderboard.ScopeGlobal, "", limitParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func attemptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt id")
		return uuid.UUID{}, false
	}
	return id, true
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrResultNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrActiveAttemptExists),
		errors.Is(err, domain.ErrAttemptNotInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAttemptExpired),
		errors.Is(err, domain.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQuizNotPublished):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrLeaderboardUnavailable):
		writeError(w, http.StatusServiceUnavailable, domain.ErrLeaderboardUnavailable.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
