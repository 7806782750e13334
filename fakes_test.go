package questionbank

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// memStore is an in-memory Store with per-ID failure injection
type memStore struct {
	mu        sync.Mutex
	questions map[string]Question
	banks     map[string]*QuestionBank
	members   map[string][]string

	failUpdate map[string]error
	failRemove map[string]error
	failCreate error
	calls      int
}

func newMemStore() *memStore {
	return &memStore{
		questions:  make(map[string]Question),
		banks:      make(map[string]*QuestionBank),
		members:    make(map[string][]string),
		failUpdate: make(map[string]error),
		failRemove: make(map[string]error),
	}
}

func (s *memStore) addBank(id string) {
	s.banks[id] = &QuestionBank{ID: id, Name: id, SourceType: SourceManual, Categories: []string{"General"}}
}

func (s *memStore) addQuestion(bankID string, q Question) {
	s.questions[q.ID] = q
	s.members[bankID] = append(s.members[bankID], q.ID)
}

func (s *memStore) CreateQuestion(ctx context.Context, bankID string, p QuestionPayload) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	if _, ok := s.banks[bankID]; !ok {
		return nil, ErrNotFound
	}
	q := questionFromPayload(p, StatusActive)
	s.addQuestion(bankID, q)
	return &q, nil
}

func (s *memStore) UpdateQuestion(ctx context.Context, id string, patch QuestionPatch) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.failUpdate[id]; err != nil {
		return nil, err
	}
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	q = patch.ApplyTo(q)
	s.questions[id] = q
	return &q, nil
}

func (s *memStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return &q, nil
}

func (s *memStore) RemoveQuestionFromBank(ctx context.Context, bankID, questionID string) (*QuestionBank, error) {
	s.mu.Lock()
	s.calls++
	if err := s.failRemove[questionID]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ids := s.members[bankID]
	found := false
	for i, id := range ids {
		if id == questionID {
			s.members[bankID] = append(ids[:i:i], ids[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(s.questions, questionID)
	s.mu.Unlock()
	return s.GetQuestionBank(ctx, bankID)
}

func (s *memStore) CreateQuestionBank(ctx context.Context, p BankPayload) (*QuestionBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	b := &QuestionBank{ID: newID(), Name: p.Name, Description: p.Description, SourceType: p.SourceType, Categories: p.Categories}
	s.banks[b.ID] = b
	out := *b
	return &out, nil
}

func (s *memStore) UpdateQuestionBank(ctx context.Context, id string, patch BankPatch) (*QuestionBank, error) {
	s.mu.Lock()
	s.calls++
	b, ok := s.banks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	updated := patch.ApplyTo(*b)
	s.banks[id] = &updated
	s.mu.Unlock()
	return s.GetQuestionBank(ctx, id)
}

func (s *memStore) GetQuestionBank(ctx context.Context, id string) (*QuestionBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[id]
	if !ok {
		return nil, fmt.Errorf("question bank %s: %w", id, ErrNotFound)
	}
	out := *b
	out.Questions = []BankMember{}
	for _, qid := range s.members[id] {
		out.Questions = append(out.Questions, Resolved(s.questions[qid]))
	}
	// Stale on purpose: callers must recount.
	out.QuestionCount = 99
	return &out, nil
}

func (s *memStore) ListQuestionBanks(ctx context.Context) ([]QuestionBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QuestionBank
	for _, b := range s.banks {
		out = append(out, *b)
	}
	return out, nil
}

func (s *memStore) AddPendingQuestions(ctx context.Context, bankID string, qs []Question) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.banks[bankID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		if q.ID == "" {
			q.ID = newID()
		}
		q.Status = StatusPendingReview
		s.addQuestion(bankID, q)
		out = append(out, q)
	}
	return out, nil
}

func (s *memStore) ProcessReviewedAiQuestions(ctx context.Context, bankID string, d ReviewDecision) (*QuestionBank, error) {
	s.mu.Lock()
	s.calls++
	for _, id := range d.AcceptedIDs {
		if q, ok := s.questions[id]; ok {
			q.Status = StatusActive
			s.questions[id] = q
		}
	}
	s.mu.Unlock()
	for _, id := range d.DeletedIDs {
		if _, err := s.RemoveQuestionFromBank(ctx, bankID, id); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.GetQuestionBank(ctx, bankID)
}

func (s *memStore) Close() error { return nil }

// serverError carries a message meant for the user
type serverError struct{ msg string }

func (e serverError) Error() string         { return "server: " + e.msg }
func (e serverError) ServerMessage() string { return e.msg }

// stubGenerator returns canned questions, optionally blocking until release
type stubGenerator struct {
	store     Store
	questions []Question
	err       error
	release   chan struct{}
}

func (g *stubGenerator) GenerateAiQuestions(ctx context.Context, params GenerationParams) ([]Question, error) {
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.store.AddPendingQuestions(ctx, params.BankID, g.questions)
}

// recordingNotifier collects published events
type recordingNotifier struct {
	mu     sync.Mutex
	events []BankEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, e BankEvent) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []BankEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]BankEvent(nil), n.events...)
}
