package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/config"
	"lesson-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler drives one quiz attempt per websocket connection.
type WSHandler struct {
	quiz     *app.QuizService
	results  *app.ResultService
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz *app.QuizService, results *app.ResultService) *WSHandler {
	return &WSHandler{
		quiz:    quiz,
		results: results,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Option string `json:"option"`
}

type startedPayload struct {
	AttemptID      string           `json:"attemptId"`
	LessonID       string           `json:"lessonId"`
	TotalQuestions int              `json:"totalQuestions"`
	TimeLimit      int              `json:"timeLimit"`
	Questions      []publicQuestion `json:"mcqs"`
}

type completePayload struct {
	AttemptID      string                `json:"attemptId"`
	Score          int                   `json:"score"`
	TotalQuestions int                   `json:"totalQuestions"`
	UserAnswers    []domain.AnswerRecord `json:"userAnswers"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	e := classify(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: e.Code, Message: e.Message}}
}

// ServeWS upgrades to a websocket, starts an attempt and forwards commands to it.
// Query: lessonId (required), timeLimit (seconds, optional).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	if lessonID == "" {
		http.Error(w, "missing lessonId", http.StatusBadRequest)
		return
	}
	var opts app.StartOptions
	if raw := r.URL.Query().Get("timeLimit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > config.MaxTimeLimit {
			http.Error(w, "timeLimit must be between 1 and 600", http.StatusBadRequest)
			return
		}
		opts.TimeLimit = limit
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Commands outlive the upgrade request's context only as long as the connection does.
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	session, err := h.quiz.Start(ctx, lessonID, opts)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	attemptID := session.ID()
	questions := session.Questions()
	defer h.quiz.Abandon(context.Background(), attemptID)

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var background sync.WaitGroup

	// enqueue never blocks a producer on a dead writer.
	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
		AttemptID:      attemptID,
		LessonID:       lessonID,
		TotalQuestions: questions.Len(),
		TimeLimit:      session.TimeLimit(),
		Questions:      stripAnswers(questions),
	}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// A failed handoff leaves no readable results, so it is reported instead of complete.
					if err := session.Err(); err != nil {
						enqueue(errorMessage(err))
						return
					}
					if c, done := session.Completion(); done {
						enqueue(outboundMessage[any]{Type: "complete", Payload: completePayload{
							AttemptID:      c.AttemptID,
							Score:          c.Score,
							TotalQuestions: len(c.Ledger),
							UserAnswers:    c.Ledger,
						}})
					}
					return
				}
				if !enqueue(outboundMessage[any]{Type: "state", Payload: update}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var cmdErr error
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "invalid select payload"}})
				continue
			}
			_, cmdErr = h.quiz.Select(ctx, attemptID, payload.Option)
		case "submit":
			_, cmdErr = h.quiz.Submit(ctx, attemptID)
		case "advance":
			_, cmdErr = h.quiz.Advance(ctx, attemptID)
		case "results":
			cmdErr = h.sendResults(ctx, lessonID, attemptID, enqueue, &background)
		default:
			enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "unsupported message type"}})
			continue
		}
		if cmdErr != nil {
			// The updates goroutine reports a failed handoff.
			if handoffErr := session.Err(); handoffErr != nil && errors.Is(cmdErr, handoffErr) {
				continue
			}
			// A finished attempt is no longer tracked; report it as closed.
			if errors.Is(cmdErr, domain.ErrSessionNotFound) {
				cmdErr = domain.ErrSessionClosed
			}
			enqueue(errorMessage(cmdErr))
		}
	}

	close(closeSignals)
	cancelCtx()
	<-updatesDone
	background.Wait()
	close(send)
	<-writerDone
}

// sendResults scores the finished attempt and sends the result, then explanations once they resolve.
func (h *WSHandler) sendResults(ctx context.Context, lessonID, attemptID string, enqueue func(outboundMessage[any]) bool, background *sync.WaitGroup) error {
	result, explained, err := h.results.ForAttempt(ctx, lessonID, attemptID)
	if err != nil {
		return err
	}
	enqueue(outboundMessage[any]{Type: "result", Payload: result})

	background.Add(1)
	go func() {
		defer background.Done()
		select {
		case r, ok := <-explained:
			if ok && hasExplanations(r) {
				enqueue(outboundMessage[any]{Type: "explanations", Payload: r})
			}
		case <-ctx.Done():
		}
	}()
	return nil
}

func hasExplanations(r domain.Result) bool {
	for _, e := range r.PerQuestion {
		if e.Explanation != "" {
			return true
		}
	}
	return false
}
