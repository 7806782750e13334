package questionbank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const evaluateQuestionTool = "evaluate_question"

// MaxRevisions is how many times a candidate may be revised before it is
// rejected outright
const MaxRevisions = 3

// ScreeningAction is the checker's verdict on a candidate
type ScreeningAction string

const (
	ActionAccept ScreeningAction = "accept"
	ActionReject ScreeningAction = "reject"
	ActionRevise ScreeningAction = "revise"
)

// ScreeningResult is the outcome of checking one candidate
type ScreeningResult struct {
	QuestionID      string
	Action          ScreeningAction
	Reason          string
	RevisedQuestion *Question
}

// QuestionChecker screens generated questions before they reach review
type QuestionChecker struct {
	client chatClient
	model  string
}

// NewQuestionChecker creates a question checker with an OpenAI client
func NewQuestionChecker(apiKey, model string) *QuestionChecker {
	if model == "" {
		model = openai.GPT4o
	}
	return &QuestionChecker{client: openai.NewClient(apiKey), model: model}
}

// CheckQuestion screens a candidate that has already been revised
// revisions times.
func (qc *QuestionChecker) CheckQuestion(ctx context.Context, question Question, revisions int, params GenerationParams, logger *LLMLogger) (*ScreeningResult, error) {
	VerboseLog("Checking question: %s (revision count: %d)", question.ID, revisions)

	if revisions >= MaxRevisions {
		result := &ScreeningResult{
			QuestionID: question.ID,
			Action:     ActionReject,
			Reason:     fmt.Sprintf("rejected after %d revision attempts", revisions),
		}
		logger.LogQuestionResult(question.ID, string(result.Action), result.Reason)
		return result, nil
	}

	prompt := qc.buildPrompt(question, params)
	logger.LogLLMRequest("QuestionChecker", prompt)

	resp, err := qc.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: qc.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You review training questions for restaurant staff for correctness, clarity and fairness.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        evaluateQuestionTool,
					Description: "Evaluate a training question and decide whether to accept, reject, or revise it",
					Parameters: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"reason": map[string]interface{}{
								"type":        "string",
								"description": "Explanation for the decision",
							},
							"action": map[string]interface{}{
								"type": "string",
								"enum": []string{string(ActionAccept), string(ActionReject), string(ActionRevise)},
							},
							"revised_question": questionSchema,
						},
						"required": []string{"reason", "action"},
					},
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: evaluateQuestionTool},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check question: %w", err)
	}

	args, err := toolCallArguments(resp, evaluateQuestionTool)
	if err != nil {
		return nil, err
	}
	logger.LogLLMResponse("QuestionChecker", args)

	result, err := decodeScreening(args, question, params)
	if err != nil {
		return nil, err
	}
	logger.LogQuestionResult(question.ID, string(result.Action), result.Reason)
	VerboseLog("Question %s: %s - %s", question.ID, result.Action, result.Reason)
	return result, nil
}

// decodeScreening parses evaluate_question arguments. A revision that does
// not validate turns the verdict into a rejection.
func decodeScreening(args string, question Question, params GenerationParams) (*ScreeningResult, error) {
	var toolArgs struct {
		Reason          string             `json:"reason"`
		Action          string             `json:"action"`
		RevisedQuestion *submittedQuestion `json:"revised_question,omitempty"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	result := &ScreeningResult{
		QuestionID: question.ID,
		Action:     ScreeningAction(toolArgs.Action),
		Reason:     toolArgs.Reason,
	}

	switch result.Action {
	case ActionAccept, ActionReject:
	case ActionRevise:
		if toolArgs.RevisedQuestion == nil {
			result.Action = ActionReject
			result.Reason = "revision requested without a revised question"
			break
		}
		revised, err := toolArgs.RevisedQuestion.toQuestion(params)
		if err != nil {
			result.Action = ActionReject
			result.Reason = fmt.Sprintf("invalid revision: %v", err)
			break
		}
		revised.ID = question.ID
		result.RevisedQuestion = &revised
	default:
		return nil, fmt.Errorf("unknown screening action %q", toolArgs.Action)
	}
	return result, nil
}

func (qc *QuestionChecker) buildPrompt(question Question, params GenerationParams) string {
	var sb strings.Builder

	sb.WriteString("Evaluate the following training question:\n\n")
	if len(params.Categories) > 0 {
		sb.WriteString(fmt.Sprintf("Categories: %s\n", strings.Join(params.Categories, ", ")))
	}
	if params.SourceMaterial != "" {
		sb.WriteString("Source material:\n")
		sb.WriteString(params.SourceMaterial)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nQuestion (%s): %s\n\n", question.QuestionType, question.QuestionText))

	sb.WriteString("Options (* marks correct):\n")
	for i, o := range question.Options {
		marker := " "
		if o.IsCorrect {
			marker = "*"
		}
		sb.WriteString(fmt.Sprintf("%s%d. %s\n", marker, i+1, o.Text))
	}
	sb.WriteString(fmt.Sprintf("\nExplanation: %s\n\n", question.Explanation))

	sb.WriteString("Reject the question if the answer appears in the question text, if it is not about the categories or source material, or if a marked answer is wrong.\n")
	sb.WriteString("Revise it if it has potential but is unclear or an option is implausible.\n")
	sb.WriteString("Accept it if it passes all criteria. A good question with a basic explanation should be accepted.\n")
	sb.WriteString("If you choose to revise, provide a complete revised version of the question.")

	return sb.String()
}
