package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ResultHistory lists archived results of a lesson.
type ResultHistory interface {
	RecentResults(ctx context.Context, lessonID string, limit int) ([]domain.Result, error)
}

// APIOptions configures the REST handlers.
type APIOptions struct {
	// InlineWait bounds how long POST /api/results waits for explanations. Zero returns immediately.
	InlineWait time.Duration
	History    ResultHistory
}

// API serves the question, results and explanations endpoints.
type API struct {
	questions app.QuestionRepository
	results   *app.ResultService
	opts      APIOptions
}

func NewAPI(questions app.QuestionRepository, results *app.ResultService, opts APIOptions) *API {
	return &API{questions: questions, results: results, opts: opts}
}

// NewRouter mounts the REST API, the session websocket, health and metrics.
func NewRouter(api *API, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/quiz/{lessonId}", api.getQuiz)
		r.Post("/results/{lessonId}", api.postResults)
		r.Get("/results/{lessonId}", api.listResults)
		r.Post("/explanations", api.postExplanations)
	})
	return r
}

// publicQuestion is a question as shown to the learner; scoring stays server-side.
type publicQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func stripAnswers(set domain.QuestionSet) []publicQuestion {
	out := make([]publicQuestion, 0, set.Len())
	for _, q := range set.Questions {
		out = append(out, publicQuestion{ID: q.ID, Question: q.Prompt, Options: q.Options})
	}
	return out
}

type quizResponse struct {
	LessonID string           `json:"lessonId"`
	MCQs     []publicQuestion `json:"mcqs"`
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")
	set, err := a.questions.GetQuestionSet(r.Context(), lessonID)
	if err == nil {
		err = set.Validate()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{LessonID: lessonID, MCQs: stripAnswers(set)})
}

type resultsRequest struct {
	AttemptID   string                `json:"attemptId"`
	UserAnswers []domain.AnswerRecord `json:"userAnswers"`
}

func (a *API) postResults(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")
	var req resultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	var (
		result    domain.Result
		explained <-chan domain.Result
		err       error
	)
	switch {
	case req.AttemptID != "":
		result, explained, err = a.results.ForAttempt(r.Context(), lessonID, req.AttemptID)
	case req.UserAnswers != nil:
		result, explained, err = a.results.FromLedger(r.Context(), lessonID, req.UserAnswers)
	default:
		err = badRequest("attemptId or userAnswers required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.awaitExplanations(r.Context(), result, explained))
}

// awaitExplanations waits up to InlineWait for the explained result and falls back to the scored one.
func (a *API) awaitExplanations(ctx context.Context, result domain.Result, explained <-chan domain.Result) domain.Result {
	if a.opts.InlineWait <= 0 {
		return result
	}
	timer := time.NewTimer(a.opts.InlineWait)
	defer timer.Stop()
	select {
	case r, ok := <-explained:
		if ok {
			return r
		}
	case <-timer.C:
	case <-ctx.Done():
	}
	return result
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		http.NotFound(w, r)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	results, err := a.opts.History.RecentResults(r.Context(), chi.URLParam(r, "lessonId"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type explanationsRequest struct {
	Questions []string `json:"questions"`
}

func (a *API) postExplanations(w http.ResponseWriter, r *http.Request) {
	var req explanationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}
	explanations, err := a.results.Explanations(r.Context(), req.Questions)
	if err != nil {
		writeError(w, r, domain.NewTransportError("explanations", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]string{"explanations": explanations})
}
