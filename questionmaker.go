package questionbank

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient is the part of the OpenAI client the generator uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const submitQuestionsTool = "submit_questions"

// QuestionMaker drafts candidate questions with a forced tool call
type QuestionMaker struct {
	client chatClient
	model  string
}

// NewQuestionMaker creates a question maker with an OpenAI client
func NewQuestionMaker(apiKey, model string) *QuestionMaker {
	if model == "" {
		model = openai.GPT4o
	}
	return &QuestionMaker{client: openai.NewClient(apiKey), model: model}
}

// submittedQuestion is one question as the model returns it
type submittedQuestion struct {
	QuestionText      string            `json:"questionText"`
	QuestionType      string            `json:"questionType"`
	Options           []submittedOption `json:"options"`
	Categories        []string          `json:"categories"`
	KnowledgeCategory string            `json:"knowledgeCategory"`
	Explanation       string            `json:"explanation"`
	Difficulty        string            `json:"difficulty"`
}

type submittedOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

var questionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"questionText": map[string]interface{}{
			"type":        "string",
			"description": "The question text",
		},
		"questionType": map[string]interface{}{
			"type": "string",
			"enum": []string{string(TypeSingleChoice), string(TypeMultipleChoice), string(TypeTrueFalse)},
		},
		"options": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text":      map[string]interface{}{"type": "string"},
					"isCorrect": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"text", "isCorrect"},
			},
			"description": "Answer options. True-false questions have exactly True and False.",
		},
		"categories": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Categories from the allowed list this question covers",
		},
		"knowledgeCategory": map[string]interface{}{
			"type": "string",
			"enum": knowledgeCategoryNames(),
		},
		"explanation": map[string]interface{}{
			"type":        "string",
			"description": "Brief explanation of why the answer is correct",
		},
		"difficulty": map[string]interface{}{
			"type": "string",
			"enum": []string{string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard)},
		},
	},
	"required": []string{"questionText", "questionType", "options", "categories", "explanation"},
}

func knowledgeCategoryNames() []string {
	names := make([]string, len(KnowledgeCategories))
	for i, k := range KnowledgeCategories {
		names[i] = string(k)
	}
	return names
}

// GenerateQuestions drafts up to batchSize questions. Candidates that fail
// validation are dropped and logged.
func (qm *QuestionMaker) GenerateQuestions(ctx context.Context, params GenerationParams, batchSize int, logger *LLMLogger) ([]Question, error) {
	VerboseLog("Generating %d questions for bank %s", batchSize, params.BankID)

	prompt := qm.buildPrompt(params, batchSize)
	logger.LogLLMRequest("QuestionMaker", prompt)

	resp, err := qm.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: qm.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write training questions for restaurant staff about the menu, beverages, wine and service procedures.",
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
					Name:        submitQuestionsTool,
					Description: "Submit generated training questions",
					Parameters: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"questions": map[string]interface{}{
								"type":  "array",
								"items": questionSchema,
							},
						},
						"required": []string{"questions"},
					},
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: submitQuestionsTool},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	args, err := toolCallArguments(resp, submitQuestionsTool)
	if err != nil {
		return nil, err
	}
	logger.LogLLMResponse("QuestionMaker", args)

	questions, rejected, err := decodeSubmittedQuestions(args, params)
	if err != nil {
		return nil, err
	}
	for _, reason := range rejected {
		logger.LogQuestionResult("-", "invalid", reason)
		VerboseLog("Dropped generated question: %s", reason)
	}

	log.Printf("Generated %d questions (%d invalid) for bank %s", len(questions), len(rejected), params.BankID)
	return questions, nil
}

// toolCallArguments returns the raw arguments of the expected tool call
func toolCallArguments(resp openai.ChatCompletionResponse, name string) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return "", fmt.Errorf("no tool calls in response")
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != name {
		return "", fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	return toolCall.Function.Arguments, nil
}

// decodeSubmittedQuestions parses submit_questions arguments into pending
// questions. It returns the valid questions and a reason for each one
// dropped.
func decodeSubmittedQuestions(args string, params GenerationParams) ([]Question, []string, error) {
	var toolArgs struct {
		Questions []submittedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	var questions []Question
	var rejected []string
	for i, sq := range toolArgs.Questions {
		q, err := sq.toQuestion(params)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("question %d: %v", i+1, err))
			continue
		}
		questions = append(questions, q)
	}
	return questions, rejected, nil
}

// toQuestion normalizes a submitted question against the request
func (sq submittedQuestion) toQuestion(params GenerationParams) (Question, error) {
	draft := QuestionDraft{
		QuestionText:      sq.QuestionText,
		QuestionType:      QuestionType(sq.QuestionType),
		Categories:        allowedCategories(sq.Categories, params.Categories),
		KnowledgeCategory: KnowledgeCategory(sq.KnowledgeCategory),
		Explanation:       sq.Explanation,
		Difficulty:        Difficulty(sq.Difficulty),
	}
	for _, o := range sq.Options {
		draft.Options = append(draft.Options, Option{Text: o.Text, IsCorrect: o.IsCorrect})
	}
	if draft.QuestionType == TypeTrueFalse {
		draft.Options = trueFalseOptions(draft.Options)
	}
	if params.KnowledgeCategory != "" {
		draft.KnowledgeCategory = params.KnowledgeCategory
	}
	if params.Difficulty != "" {
		draft.Difficulty = params.Difficulty
	}
	if len(params.QuestionTypes) > 0 && !containsType(params.QuestionTypes, draft.QuestionType) {
		return Question{}, fmt.Errorf("question type %q not requested", draft.QuestionType)
	}

	payload, err := NormalizeQuestion(draft)
	if err != nil {
		return Question{}, err
	}
	return questionFromPayload(payload, StatusPendingReview), nil
}

// allowedCategories keeps the model's categories that are in the requested
// list, falling back to the whole list when none match
func allowedCategories(got, allowed []string) []string {
	if len(allowed) == 0 {
		return got
	}
	set := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		set[c] = true
	}
	var out []string
	for _, c := range got {
		if set[strings.TrimSpace(c)] {
			out = append(out, strings.TrimSpace(c))
		}
	}
	if len(out) == 0 {
		return append([]string(nil), allowed...)
	}
	return out
}

// trueFalseOptions maps the model's answer onto the canonical True/False pair
func trueFalseOptions(opts []Option) []Option {
	out := CanonicalOptions(TypeTrueFalse)
	for i := range out {
		out[i].IsCorrect = false
	}
	for _, o := range opts {
		if !o.IsCorrect {
			continue
		}
		for i := range out {
			out[i].IsCorrect = strings.EqualFold(strings.TrimSpace(o.Text), out[i].Text)
		}
		break
	}
	return out
}

func containsType(types []QuestionType, t QuestionType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (qm *QuestionMaker) buildPrompt(params GenerationParams, batchSize int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d training questions for restaurant staff.\n\n", batchSize))

	if len(params.Categories) > 0 {
		sb.WriteString("Allowed categories (tag each question with one or more of these exactly):\n")
		for _, c := range params.Categories {
			sb.WriteString("- " + c + "\n")
		}
		sb.WriteString("\n")
	}
	if params.KnowledgeCategory != "" {
		sb.WriteString(fmt.Sprintf("Knowledge area: %s\n\n", params.KnowledgeCategory))
	}
	if len(params.QuestionTypes) > 0 {
		types := make([]string, len(params.QuestionTypes))
		for i, t := range params.QuestionTypes {
			types[i] = string(t)
		}
		sb.WriteString(fmt.Sprintf("Question types to use: %s\n\n", strings.Join(types, ", ")))
	}
	if params.Difficulty != "" {
		sb.WriteString(fmt.Sprintf("Difficulty level: %s\n\n", params.Difficulty))
	}
	if params.SourceMaterial != "" {
		sb.WriteString("Base every question on the following source material:\n")
		sb.WriteString(params.SourceMaterial)
		sb.WriteString("\n\n")
	}
	if len(params.ExistingQuestions) > 0 {
		sb.WriteString("The bank already contains these questions. Do not repeat or rephrase them:\n")
		for _, q := range params.ExistingQuestions {
			sb.WriteString("- " + q + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Requirements:\n")
	sb.WriteString("- single-choice questions have 2 to 6 options and exactly one correct option\n")
	sb.WriteString("- multiple-choice questions have 2 to 6 options and at least one correct option\n")
	sb.WriteString("- true-false questions have exactly the options True and False, one of them correct\n")
	sb.WriteString("- Incorrect options should be plausible but clearly wrong\n")
	sb.WriteString("- Avoid questions where the answer is given away in the question text\n")
	sb.WriteString("- Provide a brief explanation for why the correct answer is right\n")
	sb.WriteString("- Use the submit_questions tool to return your questions\n")

	return sb.String()
}
