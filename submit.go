package questionbank

import (
	"context"
	"log"
)

// Submitter is the submission edge of one editing session. It validates
// and diffs locally, makes at most one store call at a time, and converts
// store failures into *ExternalError. Drafts passed in are never modified,
// so the caller still holds the user's input after any failure.
type Submitter struct {
	store    Store
	notifier Notifier
	flag     busyFlag
}

func NewSubmitter(store Store, notifier Notifier) *Submitter {
	return &Submitter{store: store, notifier: notifierOrNop(notifier)}
}

// Busy reports whether a submission is outstanding
func (s *Submitter) Busy() bool {
	return s.flag.Busy()
}

// CreateQuestion validates d and creates an active question in bankID
func (s *Submitter) CreateQuestion(ctx context.Context, bankID string, d QuestionDraft) (*Question, error) {
	payload, err := NormalizeQuestion(d)
	if err != nil {
		return nil, err
	}
	if err := s.flag.acquire(); err != nil {
		return nil, err
	}
	defer s.flag.release()

	q, err := s.store.CreateQuestion(ctx, bankID, payload)
	if err != nil {
		return nil, wrapExternal("create question", err)
	}
	VerboseLog("Created question %s in bank %s", q.ID, bankID)
	s.notifyBank(ctx, EventQuestionsChanged, bankID)
	return q, nil
}

// UpdateQuestion submits only the fields of d that differ from original.
// It returns ErrNoChanges, without calling the store, when nothing changed.
func (s *Submitter) UpdateQuestion(ctx context.Context, original Question, d QuestionDraft) (*Question, error) {
	patch, err := PrepareQuestionUpdate(original, d)
	if err != nil {
		return nil, err
	}
	if err := s.flag.acquire(); err != nil {
		return nil, err
	}
	defer s.flag.release()

	q, err := s.store.UpdateQuestion(ctx, original.ID, patch)
	if err != nil {
		return nil, wrapExternal("update question", err)
	}
	VerboseLog("Updated question %s fields %v", q.ID, patch.Fields())
	return q, nil
}

// RemoveQuestion deletes a question from a bank
func (s *Submitter) RemoveQuestion(ctx context.Context, bankID, questionID string) (*QuestionBank, error) {
	if err := s.flag.acquire(); err != nil {
		return nil, err
	}
	defer s.flag.release()

	bank, err := s.store.RemoveQuestionFromBank(ctx, bankID, questionID)
	if err != nil {
		return nil, wrapExternal("remove question", err)
	}
	bank.RecountQuestions()
	s.notifier.Notify(ctx, bankEvent(EventQuestionsChanged, bank))
	return bank, nil
}

// CreateBank validates d and creates a bank
func (s *Submitter) CreateBank(ctx context.Context, d BankDraft) (*QuestionBank, error) {
	payload, err := NormalizeBank(d)
	if err != nil {
		return nil, err
	}
	if err := s.flag.acquire(); err != nil {
		return nil, err
	}
	defer s.flag.release()

	bank, err := s.store.CreateQuestionBank(ctx, payload)
	if err != nil {
		return nil, wrapExternal("create question bank", err)
	}
	log.Printf("Created question bank %s (%s)", bank.ID, bank.SourceType)
	s.notifier.Notify(ctx, bankEvent(EventBankCreated, bank))
	return bank, nil
}

// UpdateBank submits the changed fields of d. Changing the source type is
// rejected with ErrSourceTypeImmutable.
func (s *Submitter) UpdateBank(ctx context.Context, original QuestionBank, d BankDraft) (*QuestionBank, error) {
	patch, err := PrepareBankUpdate(original, d)
	if err != nil {
		return nil, err
	}
	if err := s.flag.acquire(); err != nil {
		return nil, err
	}
	defer s.flag.release()

	bank, err := s.store.UpdateQuestionBank(ctx, original.ID, patch)
	if err != nil {
		return nil, wrapExternal("update question bank", err)
	}
	bank.RecountQuestions()
	s.notifier.Notify(ctx, bankEvent(EventBankUpdated, bank))
	return bank, nil
}

func (s *Submitter) notifyBank(ctx context.Context, kind BankEventKind, bankID string) {
	bank, err := s.store.GetQuestionBank(ctx, bankID)
	if err != nil {
		log.Printf("Failed to refetch question bank %s: %v", bankID, err)
		return
	}
	bank.RecountQuestions()
	s.notifier.Notify(ctx, bankEvent(kind, bank))
}
