package questionbank

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// GeneratorOptions tunes the generation loop
type GeneratorOptions struct {
	BatchSize   int
	MaxAttempts int
	LogDir      string
}

// AIGenerator drafts questions with a QuestionMaker, optionally screens
// them with a QuestionChecker, and saves the survivors as pending_review.
type AIGenerator struct {
	store   Store
	maker   *QuestionMaker
	checker *QuestionChecker
	opts    GeneratorOptions
}

var _ QuestionGenerator = (*AIGenerator)(nil)

// NewAIGenerator creates a generator. checker may be nil to skip screening.
func NewAIGenerator(store Store, maker *QuestionMaker, checker *QuestionChecker, opts GeneratorOptions) *AIGenerator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &AIGenerator{store: store, maker: maker, checker: checker, opts: opts}
}

// GenerateAiQuestions generates up to params.Count questions into the bank.
// Fewer are returned when MaxAttempts batches do not yield enough valid
// questions.
func (g *AIGenerator) GenerateAiQuestions(ctx context.Context, params GenerationParams) ([]Question, error) {
	if params.Count <= 0 {
		return nil, errors.New("question count must be positive")
	}
	if params.ExistingQuestions == nil {
		existing, err := g.existingQuestions(ctx, params.BankID)
		if err != nil {
			return nil, err
		}
		params.ExistingQuestions = existing
	}

	runID := newID()
	logger, err := NewLLMLogger(g.opts.LogDir, runID, params)
	if err != nil {
		log.Printf("Failed to create LLM log for run %s: %v", runID, err)
	}
	defer logger.Close()

	log.Printf("Starting generation run %s for bank %s, target questions: %d", runID, params.BankID, params.Count)

	seen := make(map[string]bool, len(params.ExistingQuestions))
	for _, text := range params.ExistingQuestions {
		seen[dedupKey(text)] = true
	}

	accepted := make([]Question, 0, params.Count)
	batchSize := g.opts.BatchSize
	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxAttempts && len(accepted) < params.Count; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := g.maker.GenerateQuestions(ctx, params, min(batchSize, params.Count-len(accepted)), logger)
		if err != nil {
			log.Printf("Batch %d for bank %s failed: %v", attempt, params.BankID, err)
			lastErr = err
			continue
		}

		pool := NewPendingPool()
		for _, q := range candidates {
			key := dedupKey(q.QuestionText)
			if seen[key] {
				logger.LogQuestionResult(q.ID, "duplicate", q.QuestionText)
				continue
			}
			seen[key] = true
			pool.Add(q)
		}

		screened := g.screenPool(ctx, pool, params, logger)
		accepted = append(accepted, screened...)
		log.Printf("Batch %d: %d candidates, %d accepted, %d/%d total", attempt, len(candidates), len(screened), len(accepted), params.Count)

		if len(screened) == 0 {
			batchSize = min(batchSize+2, 10)
			VerboseLog("No questions accepted, increasing batch size to %d", batchSize)
		}
	}

	if len(accepted) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to generate questions: %w", lastErr)
		}
		log.Printf("Generation run %s produced no questions", runID)
		return []Question{}, nil
	}
	if len(accepted) > params.Count {
		accepted = accepted[:params.Count]
	}

	saved, err := g.store.AddPendingQuestions(ctx, params.BankID, accepted)
	if err != nil {
		return nil, fmt.Errorf("failed to save generated questions: %w", err)
	}
	log.Printf("Generation run %s complete: %d questions pending review in bank %s", runID, len(saved), params.BankID)
	return saved, nil
}

// screenPool runs every pooled candidate through the checker. Without a
// checker every candidate is accepted.
func (g *AIGenerator) screenPool(ctx context.Context, pool *PendingPool, params GenerationParams, logger *LLMLogger) []Question {
	if g.checker == nil {
		return pool.List()
	}

	var accepted []Question
	for _, q := range pool.List() {
		pool.Remove(q.ID)
		if final, ok := g.screen(ctx, q, params, logger); ok {
			accepted = append(accepted, final)
		}
	}
	return accepted
}

func (g *AIGenerator) screen(ctx context.Context, q Question, params GenerationParams, logger *LLMLogger) (Question, bool) {
	for revisions := 0; ; revisions++ {
		result, err := g.checker.CheckQuestion(ctx, q, revisions, params, logger)
		if err != nil {
			log.Printf("Error checking question %s: %v", q.ID, err)
			return Question{}, false
		}
		switch result.Action {
		case ActionAccept:
			return q, true
		case ActionRevise:
			q = *result.RevisedQuestion
		default:
			return Question{}, false
		}
	}
}

// existingQuestions lists the texts already in a bank
func (g *AIGenerator) existingQuestions(ctx context.Context, bankID string) ([]string, error) {
	bank, err := g.store.GetQuestionBank(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %w", err)
	}
	texts := make([]string, 0, len(bank.Questions))
	for _, m := range bank.Questions {
		if q := m.Question(); q != nil {
			texts = append(texts, q.QuestionText)
		}
	}
	return texts, nil
}

// dedupKey folds case and whitespace so trivially reworded repeats collide
func dedupKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
