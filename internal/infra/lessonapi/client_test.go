package lessonapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lesson-quiz-service/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", "secret", time.Second)
}

func TestLoadQuestionSet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quiz/lesson-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mcqs":[
			{"_id":"65f0","question":"2+2?","options":["3","4","5"],"correctAnswer":"4"},
			{"question":"3+3?","options":["5","6"],"correctAnswer":"6"}
		]}`))
	})

	set, err := client.LoadQuestionSet(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.LessonID != "lesson-1" || set.Len() != 2 {
		t.Fatalf("unexpected set %+v", set)
	}
	if set.Questions[0].ID != "65f0" || set.Questions[1].ID != "q2" {
		t.Fatalf("unexpected ids %q %q", set.Questions[0].ID, set.Questions[1].ID)
	}
	if set.Questions[0].CorrectAnswer != "4" || len(set.Questions[0].Options) != 3 {
		t.Fatalf("unexpected question %+v", set.Questions[0])
	}
}

func TestLoadQuestionSetNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"msg":"No quiz"}`, http.StatusNotFound)
	})
	if _, err := client.LoadQuestionSet(context.Background(), "x"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestLoadQuestionSetEmptyIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mcqs":[]}`))
	})
	set, err := client.LoadQuestionSet(context.Background(), "x")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !errors.Is(set.Validate(), domain.ErrNoQuiz) {
		t.Fatalf("expected empty set to fail validation with ErrNoQuiz")
	}
}

func TestLoadQuestionSetUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := client.LoadQuestionSet(context.Background(), "x")
	var transport *domain.TransportError
	if !errors.As(err, &transport) || transport.Op != "load quiz" {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/explanations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Questions []string `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		out := map[string]string{}
		for _, q := range body.Questions {
			out[q] = "see " + q
		}
		json.NewEncoder(w).Encode(map[string]any{"explanations": out})
	})

	got, err := client.Explain(context.Background(), []string{"2+2?"})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if got["2+2?"] != "see 2+2?" {
		t.Fatalf("unexpected explanations %v", got)
	}
}

func TestExplainNotFoundIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if _, err := client.Explain(context.Background(), []string{"q"}); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
