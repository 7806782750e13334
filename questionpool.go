package questionbank

import (
	"sync"
)

// PendingPool holds AI generated questions awaiting review, in the order
// they were generated.
type PendingPool struct {
	mu        sync.RWMutex
	questions map[string]*Question
	queue     []string // FIFO queue of question IDs
}

// NewPendingPool creates an empty pool
func NewPendingPool() *PendingPool {
	return &PendingPool{
		questions: make(map[string]*Question),
		queue:     make([]string, 0),
	}
}

// Add puts a question at the back of the queue and marks it pending.
// Adding an ID that is already queued replaces the stored question in place.
func (pp *PendingPool) Add(question Question) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	question.Status = StatusPendingReview
	if _, ok := pp.questions[question.ID]; !ok {
		pp.queue = append(pp.queue, question.ID)
	}
	pp.questions[question.ID] = &question
}

// Get returns a pending question by ID
func (pp *PendingPool) Get(questionID string) (Question, bool) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()

	q, ok := pp.questions[questionID]
	if !ok {
		return Question{}, false
	}
	return *q, true
}

// Remove drops a question from the pool
func (pp *PendingPool) Remove(questionID string) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if _, ok := pp.questions[questionID]; !ok {
		return
	}
	delete(pp.questions, questionID)

	for i, id := range pp.queue {
		if id == questionID {
			pp.queue = append(pp.queue[:i], pp.queue[i+1:]...)
			break
		}
	}
}

// Size returns the number of questions in the pool
func (pp *PendingPool) Size() int {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	return len(pp.queue)
}

// IsEmpty returns true if the pool is empty
func (pp *PendingPool) IsEmpty() bool {
	return pp.Size() == 0
}

// List returns the pending questions in generation order
func (pp *PendingPool) List() []Question {
	pp.mu.RLock()
	defer pp.mu.RUnlock()

	questions := make([]Question, 0, len(pp.queue))
	for _, id := range pp.queue {
		questions = append(questions, *pp.questions[id])
	}
	return questions
}

// IDs returns the queued IDs in order
func (pp *PendingPool) IDs() []string {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	return append([]string(nil), pp.queue...)
}
