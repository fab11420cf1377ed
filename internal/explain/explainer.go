// Package explain produces short explanations for questions a learner got wrong.
package explain

import (
	"context"
	"encoding/json"
	"fmt"

	"lesson-quiz-service/internal/llm"
)

const systemPrompt = `You are a patient tutor reviewing a finished multiple-choice quiz.
For every question you receive, explain in two or three sentences how to reach the correct answer.
Do not restate the question. Answer with one entry per question, copying the question text exactly.`

const defaultMaxTokens = 2048

// Schema is the structured output requested from the model.
var Schema = &llm.Schema{
	Name:        "quiz-explanations",
	Description: "Explanations for quiz questions answered incorrectly",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"explanations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question":    map[string]any{"type": "string"},
						"explanation": map[string]any{"type": "string"},
					},
					"required":             []any{"question", "explanation"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"explanations"},
		"additionalProperties": false,
	},
}

type batchInput struct {
	Questions []string `json:"questions"`
}

type batchItem struct {
	Question    string `json:"question"`
	Explanation string `json:"explanation"`
}

type batchOutput struct {
	Explanations []batchItem `json:"explanations"`
}

// LLMExplainer asks a model for all explanations of one result in a single request.
type LLMExplainer struct {
	provider  llm.Provider
	maxTokens int
}

func NewLLMExplainer(provider llm.Provider) *LLMExplainer {
	return &LLMExplainer{provider: provider, maxTokens: defaultMaxTokens}
}

// Explain returns explanations keyed by the prompts it was given. Entries the model
// invents for other questions are dropped.
func (e *LLMExplainer) Explain(ctx context.Context, prompts []string) (map[string]string, error) {
	out := make(map[string]string, len(prompts))
	if len(prompts) == 0 {
		return out, nil
	}

	input, err := json.Marshal(batchInput{Questions: prompts})
	if err != nil {
		return nil, err
	}
	resp, err := e.provider.Generate(ctx, llm.Request{
		System:    systemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: string(input)}},
		Schema:    Schema,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	var parsed batchOutput
	if err := json.Unmarshal(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("decode explanations: %w", err)
	}
	wanted := make(map[string]struct{}, len(prompts))
	for _, p := range prompts {
		wanted[p] = struct{}{}
	}
	for _, item := range parsed.Explanations {
		if _, ok := wanted[item.Question]; ok && item.Explanation != "" {
			out[item.Question] = item.Explanation
		}
	}
	return out, nil
}

// Placeholder answers explanation requests without a model, for the mock provider.
func Placeholder(req llm.Request) (json.RawMessage, error) {
	var in batchInput
	if len(req.Messages) > 0 {
		if err := json.Unmarshal([]byte(req.Messages[len(req.Messages)-1].Content), &in); err != nil {
			return nil, fmt.Errorf("decode mock request: %w", err)
		}
	}
	out := batchOutput{Explanations: make([]batchItem, 0, len(in.Questions))}
	for _, q := range in.Questions {
		out.Explanations = append(out.Explanations, batchItem{
			Question:    q,
			Explanation: "Review the lesson section covering this question and compare each option with the definition.",
		})
	}
	return json.Marshal(out)
}
