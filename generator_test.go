package questionbank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// scriptedClient answers each chat completion with the next canned tool call
type scriptedClient struct {
	mu      sync.Mutex
	tool    string
	replies []string
	err     error
	prompts []string
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, req.Messages[len(req.Messages)-1].Content)
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	if len(c.replies) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no more replies")
	}
	args := c.replies[0]
	c.replies = c.replies[1:]
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.tool, Arguments: args},
				}},
			},
		}},
	}, nil
}

const twoQuestions = `{"questions":[
	{"questionText":"Which wine is from Chablis?","questionType":"single-choice",
	 "options":[{"text":"Chardonnay","isCorrect":true},{"text":"Merlot","isCorrect":false}],
	 "categories":["Wine > White","Cheese"],"knowledgeCategory":"wine-knowledge","explanation":"Chablis is Chardonnay."},
	{"questionText":"Champagne is a red wine.","questionType":"true-false",
	 "options":[{"text":"true","isCorrect":false},{"text":"false","isCorrect":true}],
	 "categories":[],"explanation":"Mostly white and rose."}
]}`

func TestDecodeSubmittedQuestions(t *testing.T) {
	params := GenerationParams{BankID: "b1", Categories: []string{"Wine > White", "Wine > Sparkling"}}
	qs, rejected, err := decodeSubmittedQuestions(twoQuestions, params)
	if err != nil {
		t.Fatalf("decodeSubmittedQuestions() error = %v", err)
	}
	if len(rejected) != 0 || len(qs) != 2 {
		t.Fatalf("got %d questions, rejected %v", len(qs), rejected)
	}

	if !reflect.DeepEqual(qs[0].Categories, []string{"Wine > White"}) {
		t.Errorf("categories = %v", qs[0].Categories)
	}
	if qs[0].KnowledgeCategory != KnowledgeWine || qs[0].Status != StatusPendingReview || qs[0].ID == "" {
		t.Errorf("question 0 = %+v", qs[0])
	}

	tf := qs[1]
	if !reflect.DeepEqual(tf.Categories, params.Categories) {
		t.Errorf("fallback categories = %v", tf.Categories)
	}
	if len(tf.Options) != 2 || tf.Options[0].Text != "True" || tf.Options[0].IsCorrect || !tf.Options[1].IsCorrect {
		t.Errorf("true-false options = %+v", tf.Options)
	}
}

func TestDecodeSubmittedQuestionsDropsInvalid(t *testing.T) {
	args := `{"questions":[
		{"questionText":"No answer?","questionType":"single-choice","options":[{"text":"a"},{"text":"b"}],"categories":["c"]},
		{"questionText":"","questionType":"single-choice","options":[{"text":"a","isCorrect":true},{"text":"b"}],"categories":["c"]},
		{"questionText":"Pick all","questionType":"multiple-choice","options":[{"text":"a","isCorrect":true},{"text":"b","isCorrect":true}],"categories":["c"]},
		{"questionText":"Essay","questionType":"essay","options":[],"categories":["c"]},
		{"questionText":"Too many","questionType":"single-choice","options":[{"text":"a","isCorrect":true},{"text":"b"},{"text":"c"},{"text":"d"},{"text":"e"},{"text":"f"},{"text":"g"},{"text":"h"}],"categories":["c"]}
	]}`

	qs, rejected, err := decodeSubmittedQuestions(args, GenerationParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 || qs[0].QuestionText != "Pick all" {
		t.Fatalf("questions = %+v", qs)
	}
	if len(rejected) != 4 {
		t.Errorf("rejected = %v", rejected)
	}

	qs, _, _ = decodeSubmittedQuestions(args, GenerationParams{QuestionTypes: []QuestionType{TypeSingleChoice}})
	if len(qs) != 0 {
		t.Errorf("unrequested type accepted: %+v", qs)
	}

	if _, _, err := decodeSubmittedQuestions("not json", GenerationParams{}); err == nil {
		t.Error("expected error for malformed arguments")
	}
}

func TestDecodeScreening(t *testing.T) {
	q := pendingQuestion("q1")

	res, err := decodeScreening(`{"action":"accept","reason":"fine"}`, q, GenerationParams{})
	if err != nil || res.Action != ActionAccept {
		t.Fatalf("accept: %+v, %v", res, err)
	}

	res, err = decodeScreening(`{"action":"revise","reason":"clearer","revised_question":
		{"questionText":"Is Champagne sparkling?","questionType":"true-false","options":[{"text":"True","isCorrect":true}],"categories":["General"]}}`, q, GenerationParams{})
	if err != nil || res.Action != ActionRevise || res.RevisedQuestion == nil {
		t.Fatalf("revise: %+v, %v", res, err)
	}
	if res.RevisedQuestion.ID != "q1" || res.RevisedQuestion.QuestionText != "Is Champagne sparkling?" {
		t.Errorf("revised = %+v", res.RevisedQuestion)
	}

	res, err = decodeScreening(`{"action":"revise","reason":"x","revised_question":{"questionText":""}}`, q, GenerationParams{})
	if err != nil || res.Action != ActionReject {
		t.Errorf("invalid revision: %+v, %v", res, err)
	}
	res, err = decodeScreening(`{"action":"revise","reason":"x"}`, q, GenerationParams{})
	if err != nil || res.Action != ActionReject {
		t.Errorf("missing revision: %+v, %v", res, err)
	}
	if _, err := decodeScreening(`{"action":"maybe"}`, q, GenerationParams{}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestCheckQuestionRevisionLimit(t *testing.T) {
	client := &scriptedClient{tool: evaluateQuestionTool}
	qc := &QuestionChecker{client: client, model: "test"}
	res, err := qc.CheckQuestion(context.Background(), pendingQuestion("q1"), MaxRevisions, GenerationParams{}, nil)
	if err != nil || res.Action != ActionReject {
		t.Fatalf("CheckQuestion() = %+v, %v", res, err)
	}
	if len(client.prompts) != 0 {
		t.Errorf("model called %d times", len(client.prompts))
	}
}

func TestAIGeneratorSavesPending(t *testing.T) {
	store := reviewFixture()
	existing := pendingQuestion("e1")
	existing.QuestionText = "Which wine is from  CHABLIS?"
	existing.Status = StatusActive
	store.addQuestion("b1", existing)

	batch2 := `{"questions":[{"questionText":"Prosecco comes from Italy.","questionType":"true-false",
		"options":[{"text":"True","isCorrect":true},{"text":"False","isCorrect":false}],"categories":["Wine"]}]}`
	maker := &QuestionMaker{client: &scriptedClient{tool: submitQuestionsTool, replies: []string{twoQuestions, batch2}}, model: "test"}
	logDir := t.TempDir()
	g := NewAIGenerator(store, maker, nil, GeneratorOptions{BatchSize: 5, MaxAttempts: 3, LogDir: logDir})

	qs, err := g.GenerateAiQuestions(context.Background(), GenerationParams{BankID: "b1", Count: 2, Categories: []string{"Wine"}})
	if err != nil {
		t.Fatalf("GenerateAiQuestions() error = %v", err)
	}
	var texts []string
	for _, q := range qs {
		texts = append(texts, q.QuestionText)
		if q.Status != StatusPendingReview {
			t.Errorf("%q status = %s", q.QuestionText, q.Status)
		}
	}
	want := []string{"Champagne is a red wine.", "Prosecco comes from Italy."}
	if !reflect.DeepEqual(texts, want) {
		t.Fatalf("texts = %v, want %v", texts, want)
	}
	if n := len(store.members["b1"]); n != 3 {
		t.Errorf("bank members = %d, want 3", n)
	}

	prompt := maker.client.(*scriptedClient).prompts[0]
	if !strings.Contains(prompt, "Which wine is from  CHABLIS?") {
		t.Errorf("existing questions missing from prompt:\n%s", prompt)
	}

	entries, err := os.ReadDir(logDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("log dir entries = %v, %v", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	if !strings.Contains(string(data), "LLM REQUEST (QuestionMaker)") || !strings.Contains(string(data), "Generation Complete") {
		t.Errorf("log file missing entries:\n%s", data)
	}
}

func TestAIGeneratorScreening(t *testing.T) {
	store := reviewFixture()
	maker := &QuestionMaker{client: &scriptedClient{tool: submitQuestionsTool, replies: []string{twoQuestions}}, model: "test"}
	checker := &QuestionChecker{client: &scriptedClient{tool: evaluateQuestionTool, replies: []string{
		`{"action":"reject","reason":"answer in question"}`,
		`{"action":"revise","reason":"clearer","revised_question":{"questionText":"Champagne is usually white.","questionType":"true-false","options":[{"text":"True","isCorrect":true}],"categories":["Wine"]}}`,
		`{"action":"accept","reason":"good"}`,
	}}, model: "test"}
	g := NewAIGenerator(store, maker, checker, GeneratorOptions{MaxAttempts: 1, LogDir: t.TempDir()})

	qs, err := g.GenerateAiQuestions(context.Background(), GenerationParams{BankID: "b1", Count: 2, Categories: []string{"Wine"}, ExistingQuestions: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 || qs[0].QuestionText != "Champagne is usually white." {
		t.Fatalf("questions = %+v", qs)
	}
}

func TestAIGeneratorFailures(t *testing.T) {
	store := reviewFixture()
	maker := &QuestionMaker{client: &scriptedClient{tool: submitQuestionsTool, err: errors.New("rate limited")}, model: "test"}
	g := NewAIGenerator(store, maker, nil, GeneratorOptions{MaxAttempts: 2, LogDir: t.TempDir()})

	if _, err := g.GenerateAiQuestions(context.Background(), GenerationParams{BankID: "b1", Count: 1}); err == nil {
		t.Fatal("expected error when every batch fails")
	}
	if _, err := g.GenerateAiQuestions(context.Background(), GenerationParams{BankID: "b1"}); err == nil {
		t.Fatal("expected error for zero count")
	}
	if _, err := g.GenerateAiQuestions(context.Background(), GenerationParams{BankID: "missing", Count: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing bank: err = %v", err)
	}
}
