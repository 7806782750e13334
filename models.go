package questionbank

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType is the answer shape of a question
type QuestionType string

const (
	TypeSingleChoice   QuestionType = "single-choice"
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeTrueFalse      QuestionType = "true-false"
)

// Valid reports whether t is one of the known question types
func (t QuestionType) Valid() bool {
	switch t {
	case TypeSingleChoice, TypeMultipleChoice, TypeTrueFalse:
		return true
	}
	return false
}

// exclusive reports whether at most one option may be marked correct
func (t QuestionType) exclusive() bool {
	return t == TypeSingleChoice || t == TypeTrueFalse
}

// QuestionStatus represents the state of a question in the review lifecycle
type QuestionStatus string

const (
	StatusActive        QuestionStatus = "active"
	StatusPendingReview QuestionStatus = "pending_review"
)

// KnowledgeCategory is the fixed taxonomy tagged on every question
type KnowledgeCategory string

const (
	KnowledgeFood       KnowledgeCategory = "food-knowledge"
	KnowledgeBeverage   KnowledgeCategory = "beverage-knowledge"
	KnowledgeWine       KnowledgeCategory = "wine-knowledge"
	KnowledgeProcedures KnowledgeCategory = "procedures-knowledge"
)

// KnowledgeCategories lists the taxonomy in display order
var KnowledgeCategories = []KnowledgeCategory{KnowledgeFood, KnowledgeBeverage, KnowledgeWine, KnowledgeProcedures}

// Valid reports whether k belongs to the taxonomy
func (k KnowledgeCategory) Valid() bool {
	for _, c := range KnowledgeCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Difficulty is an optional question difficulty
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty. The empty value is valid (unset).
func (d Difficulty) Valid() bool {
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// SourceType is the origin of a bank's category vocabulary
type SourceType string

const (
	SourceManual SourceType = "MANUAL"
	SourceMenu   SourceType = "MENU"
	SourceSOP    SourceType = "SOP"
)

func (s SourceType) Valid() bool {
	return s == SourceManual || s == SourceMenu || s == SourceSOP
}

// Option is a single answer option. ID is empty for freshly drafted options.
type Option struct {
	ID        string `json:"_id,omitempty"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is a persisted quiz question
type Question struct {
	ID                string            `json:"_id"`
	QuestionText      string            `json:"questionText"`
	QuestionType      QuestionType      `json:"questionType"`
	Options           []Option          `json:"options"`
	Categories        []string          `json:"categories"`
	KnowledgeCategory KnowledgeCategory `json:"knowledgeCategory,omitempty"`
	Explanation       string            `json:"explanation,omitempty"`
	Difficulty        Difficulty        `json:"difficulty,omitempty"`
	Status            QuestionStatus    `json:"status"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// BankMember is a question bank's reference to a question: either a bare
// ID or the populated question. Use Resolve before reading fields.
type BankMember struct {
	id       string
	question *Question
}

// Reference builds an unresolved member
func Reference(id string) BankMember {
	return BankMember{id: id}
}

// Resolved builds a member carrying the full question
func Resolved(q Question) BankMember {
	return BankMember{id: q.ID, question: &q}
}

func (m BankMember) ID() string {
	return m.id
}

func (m BankMember) IsResolved() bool {
	return m.question != nil
}

// Question returns the populated question, or nil for a bare reference
func (m BankMember) Question() *Question {
	return m.question
}

// Resolve returns the populated question, fetching it through lookup when
// the member is only a reference.
func (m BankMember) Resolve(lookup func(id string) (*Question, error)) (*Question, error) {
	if m.question != nil {
		return m.question, nil
	}
	q, err := lookup(m.id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve question %s: %w", m.id, err)
	}
	return q, nil
}

// MarshalJSON writes a reference as a string and a resolved member as an object
func (m BankMember) MarshalJSON() ([]byte, error) {
	if m.question != nil {
		return json.Marshal(m.question)
	}
	return json.Marshal(m.id)
}

func (m *BankMember) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*m = Reference(id)
		return nil
	}
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return fmt.Errorf("failed to decode bank member: %w", err)
	}
	*m = Resolved(q)
	return nil
}

// QuestionBank is a named collection of questions plus its category source
type QuestionBank struct {
	ID            string       `json:"_id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	SourceType    SourceType   `json:"sourceType"`
	Categories    []string     `json:"categories"`
	SourceMenuID  string       `json:"sourceMenuId,omitempty"`
	SourceSopID   string       `json:"sourceSopId,omitempty"`
	Questions     []BankMember `json:"questions"`
	QuestionCount int          `json:"questionCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// RecountQuestions sets QuestionCount to the true size of the member list.
// The count is never adjusted incrementally.
func (b *QuestionBank) RecountQuestions() {
	b.QuestionCount = len(b.Questions)
}

// ActiveQuestionCount counts resolved members that are delivered in quizzes.
// Pending review questions and unresolved references are not counted.
func (b *QuestionBank) ActiveQuestionCount() int {
	n := 0
	for _, m := range b.Questions {
		if q := m.Question(); q != nil && q.Status == StatusActive {
			n++
		}
	}
	return n
}

// HasMember reports whether questionID is in the bank
func (b *QuestionBank) HasMember(questionID string) bool {
	for _, m := range b.Questions {
		if m.ID() == questionID {
			return true
		}
	}
	return false
}

// CategoryTreeNode is one node of a menu or SOP derived category tree.
// FullName is the ancestor chain joined by CategoryPathSeparator and is
// the unique selection key.
type CategoryTreeNode struct {
	Name     string             `json:"name"`
	FullName string             `json:"fullName"`
	Children []CategoryTreeNode `json:"children,omitempty"`
}

// GenerationParams is a request to the AI generator
type GenerationParams struct {
	BankID            string            `json:"bankId"`
	Count             int               `json:"count"`
	Categories        []string          `json:"categories"`
	KnowledgeCategory KnowledgeCategory `json:"knowledgeCategory,omitempty"`
	QuestionTypes     []QuestionType    `json:"questionTypes,omitempty"`
	Difficulty        Difficulty        `json:"difficulty,omitempty"`
	SourceMaterial    string            `json:"sourceMaterial,omitempty"`
	// ExistingQuestions are question texts already in the bank, sent to the
	// model so it avoids repeating them.
	ExistingQuestions []string `json:"-"`
}

// ReviewDecision is a batch of review outcomes for pending questions
type ReviewDecision struct {
	AcceptedIDs []string `json:"acceptedIds"`
	DeletedIDs  []string `json:"deletedIds"`
}
