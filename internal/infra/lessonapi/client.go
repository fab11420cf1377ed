// Package lessonapi reads generated quizzes from the lesson service that owns them.
package lessonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lesson-quiz-service/internal/domain"
)

// Client talks to the lesson API: GET /api/quiz/{lessonId} and POST /api/explanations.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// upstream MCQs carry either "id" or a document "_id"
type mcq struct {
	ID            string   `json:"id"`
	DocID         string   `json:"_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

type quizResponse struct {
	MCQs []mcq `json:"mcqs"`
}

// LoadQuestionSet fetches a lesson's MCQs. A 404 means no quiz has been generated yet.
func (c *Client) LoadQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/quiz/"+url.PathEscape(lessonID), nil)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	var body quizResponse
	if err := c.do(req, "load quiz", domain.ErrQuizNotFound, &body); err != nil {
		return domain.QuestionSet{}, err
	}

	set := domain.QuestionSet{LessonID: lessonID, Questions: make([]domain.Question, 0, len(body.MCQs))}
	for i, m := range body.MCQs {
		id := m.ID
		if id == "" {
			id = m.DocID
		}
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		set.Questions = append(set.Questions, domain.Question{
			ID:            id,
			Prompt:        m.Question,
			Options:       m.Options,
			CorrectAnswer: m.CorrectAnswer,
		})
	}
	return set, nil
}

type explanationsRequest struct {
	Questions []string `json:"questions"`
}

type explanationsResponse struct {
	Explanations map[string]string `json:"explanations"`
}

// Explain asks the lesson API's explanation endpoint for a batch of prompts.
func (c *Client) Explain(ctx context.Context, prompts []string) (map[string]string, error) {
	if len(prompts) == 0 {
		return map[string]string{}, nil
	}
	payload, err := json.Marshal(explanationsRequest{Questions: prompts})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/explanations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var body explanationsResponse
	if err := c.do(req, "explanations", nil, &body); err != nil {
		return nil, err
	}
	if body.Explanations == nil {
		body.Explanations = map[string]string{}
	}
	return body.Explanations, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. A 404 maps to notFound when set.
func (c *Client) do(req *http.Request, op string, notFound error, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NewTransportError(op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewTransportError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
