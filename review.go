package questionbank

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// QuestionGenerator produces AI generated questions for a bank. Returned
// questions are already saved with status pending_review.
type QuestionGenerator interface {
	GenerateAiQuestions(ctx context.Context, params GenerationParams) ([]Question, error)
}

// BulkResult is the outcome of a bulk review operation. Every requested ID
// ends up in exactly one of SucceededIDs or FailedIDs.
type BulkResult struct {
	SucceededIDs []string          `json:"succeededIds"`
	FailedIDs    []string          `json:"failedIds"`
	Errors       map[string]string `json:"errors,omitempty"`
	// Bank is the bank refetched after the batch, with QuestionCount
	// recomputed from its members. Nil if the refetch failed.
	Bank *QuestionBank `json:"bank,omitempty"`
}

func (r *BulkResult) succeed(id string) {
	r.SucceededIDs = append(r.SucceededIDs, id)
}

func (r *BulkResult) fail(id string, err error) {
	r.FailedIDs = append(r.FailedIDs, id)
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = UserMessage(err)
}

// busyFlag gates a control to a single outstanding call
type busyFlag struct {
	mu   sync.Mutex
	busy bool
}

func (b *busyFlag) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return ErrBusy
	}
	b.busy = true
	return nil
}

func (b *busyFlag) release() {
	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()
}

// Busy reports whether a call is outstanding
func (b *busyFlag) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// ReviewController drives AI generation and the review of pending
// questions for one editing session. Generation and bulk operations share
// one busy flag, so at most one of them runs at a time.
type ReviewController struct {
	store     Store
	generator QuestionGenerator
	notifier  Notifier

	flag busyFlag

	mu    sync.Mutex
	pools map[string]*PendingPool
}

// NewReviewController wires a controller. generator and notifier may be nil.
func NewReviewController(store Store, generator QuestionGenerator, notifier Notifier) *ReviewController {
	return &ReviewController{
		store:     store,
		generator: generator,
		notifier:  notifierOrNop(notifier),
		pools:     make(map[string]*PendingPool),
	}
}

// Busy reports whether a generation or bulk operation is outstanding
func (c *ReviewController) Busy() bool {
	return c.flag.Busy()
}

func (c *ReviewController) pool(bankID string) *PendingPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[bankID]
	if !ok {
		p = NewPendingPool()
		c.pools[bankID] = p
	}
	return p
}

// Pending lists the bank's pending questions in generation order
func (c *ReviewController) Pending(bankID string) []Question {
	return c.pool(bankID).List()
}

// LoadPending replaces the bank's pending pool with the pending_review
// members currently stored for it.
func (c *ReviewController) LoadPending(ctx context.Context, bankID string) ([]Question, error) {
	bank, err := c.store.GetQuestionBank(ctx, bankID)
	if err != nil {
		return nil, wrapExternal("load question bank", err)
	}
	p := NewPendingPool()
	for _, m := range bank.Questions {
		if q := m.Question(); q != nil && q.Status == StatusPendingReview {
			p.Add(*q)
		}
	}
	c.mu.Lock()
	c.pools[bankID] = p
	c.mu.Unlock()
	return p.List(), nil
}

type generationResult struct {
	questions []Question
	err       error
}

// Generate asks the generator for new questions. If ctx ends first the
// call returns ctx.Err() and a response arriving later is dropped without
// touching the pending pool. The busy flag stays held until the generator
// itself returns, so an abandoned call still blocks a second generation.
func (c *ReviewController) Generate(ctx context.Context, params GenerationParams) ([]Question, error) {
	if c.generator == nil {
		return nil, &ExternalError{Op: "generate questions", ServerMessage: "AI generation is not configured."}
	}
	if err := c.flag.acquire(); err != nil {
		return nil, err
	}

	done := make(chan generationResult, 1)
	go func() {
		qs, err := c.generator.GenerateAiQuestions(ctx, params)
		c.flag.release()
		done <- generationResult{questions: qs, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Generation for bank %s abandoned: %v", params.BankID, ctx.Err())
		return nil, ctx.Err()
	case r := <-done:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.err != nil {
			return nil, wrapExternal("generate questions", r.err)
		}
		p := c.pool(params.BankID)
		for _, q := range r.questions {
			p.Add(q)
		}
		log.Printf("Generated %d questions for bank %s, %d pending review", len(r.questions), params.BankID, p.Size())
		c.notifyRefetched(ctx, EventQuestionsChanged, params.BankID)
		return r.questions, nil
	}
}

// Approve makes each pending question of the bank active. Items are
// processed one at a time; a failure is recorded and the batch continues.
// IDs that are not members of the bank fail without a store write.
// Approving an already active question succeeds without one.
func (c *ReviewController) Approve(ctx context.Context, bankID string, ids []string) (BulkResult, error) {
	if err := c.flag.acquire(); err != nil {
		return BulkResult{}, err
	}
	defer c.flag.release()

	bank, err := c.store.GetQuestionBank(ctx, bankID)
	if err != nil {
		return BulkResult{}, wrapExternal("load question bank", err)
	}

	var res BulkResult
	p := c.pool(bankID)
	for _, id := range ids {
		if !bank.HasMember(id) {
			err := fmt.Errorf("question %s is not in bank %s: %w", id, bankID, ErrNotFound)
			log.Printf("Failed to approve question %s: %v", id, err)
			res.fail(id, err)
			continue
		}
		if err := c.approveOne(ctx, id); err != nil {
			log.Printf("Failed to approve question %s: %v", id, err)
			res.fail(id, err)
			continue
		}
		p.Remove(id)
		res.succeed(id)
	}
	res.Bank = c.refetch(ctx, bankID)
	log.Printf("Approved %d of %d questions in bank %s", len(res.SucceededIDs), len(ids), bankID)
	if res.Bank != nil {
		c.notifier.Notify(ctx, bankEvent(EventQuestionsChanged, res.Bank))
	}
	return res, nil
}

func (c *ReviewController) approveOne(ctx context.Context, id string) error {
	q, err := c.store.GetQuestion(ctx, id)
	if err != nil {
		return wrapExternal("get question", err)
	}
	if q.Status == StatusActive {
		return nil
	}
	active := StatusActive
	if _, err := c.store.UpdateQuestion(ctx, id, QuestionPatch{Status: &active}); err != nil {
		return wrapExternal("approve question", err)
	}
	return nil
}

// RejectOrDelete permanently removes each question from the bank, with the
// same per-item failure isolation as Approve.
func (c *ReviewController) RejectOrDelete(ctx context.Context, bankID string, ids []string) (BulkResult, error) {
	if err := c.flag.acquire(); err != nil {
		return BulkResult{}, err
	}
	defer c.flag.release()

	var res BulkResult
	p := c.pool(bankID)
	for _, id := range ids {
		if _, err := c.store.RemoveQuestionFromBank(ctx, bankID, id); err != nil {
			err = wrapExternal("remove question", err)
			log.Printf("Failed to remove question %s from bank %s: %v", id, bankID, err)
			res.fail(id, err)
			continue
		}
		p.Remove(id)
		res.succeed(id)
	}
	res.Bank = c.refetch(ctx, bankID)
	log.Printf("Removed %d of %d questions from bank %s", len(res.SucceededIDs), len(ids), bankID)
	if res.Bank != nil {
		c.notifier.Notify(ctx, bankEvent(EventQuestionsChanged, res.Bank))
	}
	return res, nil
}

// ProcessReview submits accepted and deleted IDs in one store call
func (c *ReviewController) ProcessReview(ctx context.Context, bankID string, d ReviewDecision) (*QuestionBank, error) {
	if err := c.flag.acquire(); err != nil {
		return nil, err
	}
	defer c.flag.release()

	bank, err := c.store.ProcessReviewedAiQuestions(ctx, bankID, d)
	if err != nil {
		return nil, wrapExternal("process reviewed questions", err)
	}
	bank.RecountQuestions()

	p := c.pool(bankID)
	for _, id := range d.AcceptedIDs {
		p.Remove(id)
	}
	for _, id := range d.DeletedIDs {
		p.Remove(id)
	}
	c.notifier.Notify(ctx, bankEvent(EventReviewProcessed, bank))
	return bank, nil
}

// refetch loads the bank after a mutation and recounts its members
func (c *ReviewController) refetch(ctx context.Context, bankID string) *QuestionBank {
	bank, err := c.store.GetQuestionBank(ctx, bankID)
	if err != nil {
		log.Printf("Failed to refetch question bank %s: %v", bankID, err)
		return nil
	}
	bank.RecountQuestions()
	return bank
}

func (c *ReviewController) notifyRefetched(ctx context.Context, kind BankEventKind, bankID string) {
	if bank := c.refetch(ctx, bankID); bank != nil {
		c.notifier.Notify(ctx, bankEvent(kind, bank))
	}
}
