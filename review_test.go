package questionbank

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func pendingQuestion(id string) Question {
	return Question{
		ID:           id,
		QuestionText: "Question " + id,
		QuestionType: TypeTrueFalse,
		Options:      CanonicalOptions(TypeTrueFalse),
		Categories:   []string{"General"},
		Status:       StatusPendingReview,
	}
}

func reviewFixture(ids ...string) *memStore {
	s := newMemStore()
	s.addBank("b1")
	for _, id := range ids {
		s.addQuestion("b1", pendingQuestion(id))
	}
	return s
}

func TestApprovePartialFailure(t *testing.T) {
	store := reviewFixture("q1", "q2", "q3")
	store.failUpdate["q2"] = serverError{msg: "Question is locked."}
	notifier := &recordingNotifier{}
	c := NewReviewController(store, nil, notifier)

	res, err := c.Approve(context.Background(), "b1", []string{"q1", "q2", "q3"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if !reflect.DeepEqual(res.SucceededIDs, []string{"q1", "q3"}) {
		t.Errorf("SucceededIDs = %v", res.SucceededIDs)
	}
	if !reflect.DeepEqual(res.FailedIDs, []string{"q2"}) {
		t.Errorf("FailedIDs = %v", res.FailedIDs)
	}
	if res.Errors["q2"] != "Question is locked." {
		t.Errorf("Errors[q2] = %q", res.Errors["q2"])
	}

	for id, want := range map[string]QuestionStatus{"q1": StatusActive, "q2": StatusPendingReview, "q3": StatusActive} {
		if got := store.questions[id].Status; got != want {
			t.Errorf("%s status = %s, want %s", id, got, want)
		}
	}

	if res.Bank == nil || res.Bank.QuestionCount != 3 {
		t.Fatalf("Bank = %+v, want refetched bank with 3 questions", res.Bank)
	}
	events := notifier.Events()
	if len(events) != 1 || events[0].Kind != EventQuestionsChanged || events[0].QuestionCount != 3 {
		t.Errorf("events = %+v", events)
	}
}

func TestApproveActiveQuestionIsNoop(t *testing.T) {
	store := reviewFixture()
	q := pendingQuestion("q1")
	q.Status = StatusActive
	store.addQuestion("b1", q)
	c := NewReviewController(store, nil, nil)

	res, err := c.Approve(context.Background(), "b1", []string{"q1"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.SucceededIDs, []string{"q1"}) || len(res.FailedIDs) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if store.calls != 0 {
		t.Errorf("store writes = %d, want 0", store.calls)
	}
}

func TestApproveUnknownQuestionFails(t *testing.T) {
	c := NewReviewController(reviewFixture("q1"), nil, nil)
	res, err := c.Approve(context.Background(), "b1", []string{"ghost", "q1"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.FailedIDs, []string{"ghost"}) || !reflect.DeepEqual(res.SucceededIDs, []string{"q1"}) {
		t.Fatalf("result = %+v", res)
	}
	if res.Errors["ghost"] != GenericErrorMessage {
		t.Errorf("Errors[ghost] = %q", res.Errors["ghost"])
	}
}

func TestApproveQuestionFromOtherBankFails(t *testing.T) {
	store := reviewFixture("q1")
	store.addBank("b2")
	store.addQuestion("b2", pendingQuestion("other"))
	c := NewReviewController(store, nil, nil)

	res, err := c.Approve(context.Background(), "b1", []string{"other", "q1"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.FailedIDs, []string{"other"}) || !reflect.DeepEqual(res.SucceededIDs, []string{"q1"}) {
		t.Fatalf("result = %+v", res)
	}
	if got := store.questions["other"].Status; got != StatusPendingReview {
		t.Errorf("other bank's question status = %s, want %s", got, StatusPendingReview)
	}
}

func TestApproveMissingBank(t *testing.T) {
	c := NewReviewController(reviewFixture("q1"), nil, nil)
	if _, err := c.Approve(context.Background(), "nope", []string{"q1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Approve() error = %v, want ErrNotFound", err)
	}
	if c.Busy() {
		t.Error("still busy after failed Approve")
	}
}

func TestRejectOrDelete(t *testing.T) {
	store := reviewFixture("q1", "q2", "q3")
	store.failRemove["q3"] = errors.New("connection reset")
	c := NewReviewController(store, nil, nil)
	if _, err := c.LoadPending(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}

	res, err := c.RejectOrDelete(context.Background(), "b1", []string{"q1", "q3"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.SucceededIDs, []string{"q1"}) || !reflect.DeepEqual(res.FailedIDs, []string{"q3"}) {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := store.questions["q1"]; ok {
		t.Error("q1 still stored")
	}
	if res.Bank.QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", res.Bank.QuestionCount)
	}
	pending := c.Pending("b1")
	if len(pending) != 2 || pending[0].ID != "q2" || pending[1].ID != "q3" {
		t.Errorf("Pending() = %+v", pending)
	}
}

func TestGenerateAddsToPendingInOrder(t *testing.T) {
	store := reviewFixture()
	gen := &stubGenerator{store: store, questions: []Question{pendingQuestion("g1"), pendingQuestion("g2")}}
	notifier := &recordingNotifier{}
	c := NewReviewController(store, gen, notifier)

	qs, err := c.Generate(context.Background(), GenerationParams{BankID: "b1", Count: 2})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions", len(qs))
	}
	var ids []string
	for _, q := range c.Pending("b1") {
		ids = append(ids, q.ID)
	}
	if !reflect.DeepEqual(ids, []string{"g1", "g2"}) {
		t.Errorf("Pending() ids = %v", ids)
	}
	if events := notifier.Events(); len(events) != 1 || events[0].QuestionCount != 2 {
		t.Errorf("events = %+v", events)
	}
	if c.Busy() {
		t.Error("still busy after Generate returned")
	}
}

func TestGenerateAbandoned(t *testing.T) {
	store := reviewFixture()
	gen := &stubGenerator{store: store, questions: []Question{pendingQuestion("late")}, release: make(chan struct{})}
	c := NewReviewController(store, gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(ctx, GenerationParams{BankID: "b1", Count: 1})
		done <- err
	}()

	waitBusy(t, c)
	if _, err := c.Approve(context.Background(), "b1", []string{"x"}); !errors.Is(err, ErrBusy) {
		t.Errorf("Approve during generation: err = %v, want ErrBusy", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
	if !c.Busy() {
		t.Error("busy flag released while the generator is still running")
	}
	if _, err := c.Generate(context.Background(), GenerationParams{BankID: "b1", Count: 1}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Generate during abandoned run: err = %v, want ErrBusy", err)
	}
	close(gen.release)
	waitIdle(t, c)

	if n := len(c.Pending("b1")); n != 0 {
		t.Errorf("late response reached the pending pool: %d questions", n)
	}
}

func TestGenerateErrors(t *testing.T) {
	c := NewReviewController(reviewFixture(), nil, nil)
	_, err := c.Generate(context.Background(), GenerationParams{BankID: "b1", Count: 1})
	var ee *ExternalError
	if !errors.As(err, &ee) {
		t.Fatalf("nil generator: err = %v", err)
	}

	store := reviewFixture()
	c = NewReviewController(store, &stubGenerator{store: store, err: serverError{msg: "Rate limited."}}, nil)
	_, err = c.Generate(context.Background(), GenerationParams{BankID: "b1", Count: 1})
	if UserMessage(err) != "Rate limited." {
		t.Fatalf("UserMessage() = %q (err %v)", UserMessage(err), err)
	}
}

func TestProcessReview(t *testing.T) {
	store := reviewFixture("q1", "q2", "q3")
	notifier := &recordingNotifier{}
	c := NewReviewController(store, nil, notifier)
	if _, err := c.LoadPending(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}

	bank, err := c.ProcessReview(context.Background(), "b1", ReviewDecision{AcceptedIDs: []string{"q1"}, DeletedIDs: []string{"q2"}})
	if err != nil {
		t.Fatal(err)
	}
	if bank.QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", bank.QuestionCount)
	}
	if store.questions["q1"].Status != StatusActive {
		t.Errorf("q1 not active")
	}
	if got := c.Pending("b1"); len(got) != 1 || got[0].ID != "q3" {
		t.Errorf("Pending() = %+v", got)
	}
	if events := notifier.Events(); len(events) != 1 || events[0].Kind != EventReviewProcessed {
		t.Errorf("events = %+v", events)
	}
}

func waitBusy(t *testing.T, c *ReviewController) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("controller never became busy")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitIdle(t *testing.T, c *ReviewController) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("controller never became idle")
		}
		time.Sleep(time.Millisecond)
	}
}
