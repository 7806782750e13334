package questionbank

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary. Implementations keep questionCount
// equal to the true size of a bank's membership on every write.
type Store interface {
	CreateQuestion(ctx context.Context, bankID string, q QuestionPayload) (*Question, error)
	UpdateQuestion(ctx context.Context, id string, patch QuestionPatch) (*Question, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
	// RemoveQuestionFromBank deletes the question and returns the bank
	// with its count recomputed.
	RemoveQuestionFromBank(ctx context.Context, bankID, questionID string) (*QuestionBank, error)

	CreateQuestionBank(ctx context.Context, b BankPayload) (*QuestionBank, error)
	UpdateQuestionBank(ctx context.Context, id string, patch BankPatch) (*QuestionBank, error)
	// GetQuestionBank returns the bank with its members resolved
	GetQuestionBank(ctx context.Context, id string) (*QuestionBank, error)
	ListQuestionBanks(ctx context.Context) ([]QuestionBank, error)

	// AddPendingQuestions saves AI generated questions into a bank with
	// status pending_review.
	AddPendingQuestions(ctx context.Context, bankID string, qs []Question) ([]Question, error)
	ProcessReviewedAiQuestions(ctx context.Context, bankID string, d ReviewDecision) (*QuestionBank, error)

	Close() error
}

func newID() string {
	return uuid.NewString()
}

// assignOptionIDs gives every option without an identity a fresh one
func assignOptionIDs(opts []Option) []Option {
	out := copyOptions(opts)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = newID()
		}
	}
	return out
}

// questionFromPayload builds a new question record from a payload
func questionFromPayload(p QuestionPayload, status QuestionStatus) Question {
	now := time.Now().UTC()
	return Question{
		ID:                newID(),
		QuestionText:      p.QuestionText,
		QuestionType:      p.QuestionType,
		Options:           assignOptionIDs(p.Options),
		Categories:        append([]string{}, p.Categories...),
		KnowledgeCategory: p.KnowledgeCategory,
		Explanation:       p.Explanation,
		Difficulty:        p.Difficulty,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// OpenStore opens the store for driver ("sqlite3" or "postgres")
func OpenStore(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		db  *DB
		err error
	)
	switch driver {
	case "postgres", "pgx":
		db, err = OpenPostgresStore(ctx, dsn)
	default:
		db, err = OpenSQLiteStore(dsn)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}
