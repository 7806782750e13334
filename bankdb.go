package questionbank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// dialect holds what differs between the SQL backends
type dialect struct {
	name        string
	timestamp   string
	numberedArg bool // $1, $2 instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite3", timestamp: "DATETIME"}
	postgresDialect = dialect{name: "postgres", timestamp: "TIMESTAMPTZ", numberedArg: true}
)

// rebind rewrites ? placeholders for dialects that number their arguments
func (d dialect) rebind(query string) string {
	if !d.numberedArg {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// DB is a Store backed by database/sql
type DB struct {
	db      *sql.DB
	dialect dialect
}

var _ Store = (*DB)(nil)

// OpenSQLiteStore opens (creating if needed) a SQLite database and its tables
func OpenSQLiteStore(dbPath string) (*DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &DB{db: db, dialect: sqliteDialect}
	if err := store.CreateTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables(ctx context.Context) error {
	ts := db.dialect.timestamp
	queries := []string{
		`CREATE TABLE IF NOT EXISTS question_banks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL,
			categories TEXT NOT NULL,
			source_menu_id TEXT NOT NULL DEFAULT '',
			source_sop_id TEXT NOT NULL DEFAULT '',
			question_count INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			question_text TEXT NOT NULL,
			question_type TEXT NOT NULL,
			options TEXT NOT NULL,
			categories TEXT NOT NULL,
			knowledge_category TEXT NOT NULL DEFAULT '',
			explanation TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bank_questions (
			bank_id TEXT NOT NULL REFERENCES question_banks(id) ON DELETE CASCADE,
			question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			PRIMARY KEY (bank_id, question_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const questionColumns = "id, question_text, question_type, options, categories, knowledge_category, explanation, difficulty, status, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var optionsJSON, categoriesJSON string
	err := row.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &optionsJSON, &categoriesJSON,
		&q.KnowledgeCategory, &q.Explanation, &q.Difficulty, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &q.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	return &q, nil
}

func (db *DB) getQuestion(ctx context.Context, q querier, id string) (*Question, error) {
	question, err := scanQuestion(q.QueryRowContext(ctx,
		db.dialect.rebind("SELECT "+questionColumns+" FROM questions WHERE id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (db *DB) insertQuestion(ctx context.Context, q querier, question Question) error {
	optionsJSON, err := json.Marshal(question.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	categoriesJSON, err := json.Marshal(question.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	_, err = q.ExecContext(ctx, db.dialect.rebind(
		"INSERT INTO questions ("+questionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		question.ID, question.QuestionText, question.QuestionType, string(optionsJSON), string(categoriesJSON),
		question.KnowledgeCategory, question.Explanation, question.Difficulty, question.Status,
		question.CreatedAt, question.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// addMember appends questionID to the end of the bank's member list
func (db *DB) addMember(ctx context.Context, q querier, bankID, questionID string) error {
	_, err := q.ExecContext(ctx, db.dialect.rebind(
		`INSERT INTO bank_questions (bank_id, question_id, position)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM bank_questions WHERE bank_id = ?))`),
		bankID, questionID, bankID)
	if err != nil {
		return fmt.Errorf("failed to add question to bank: %w", err)
	}
	return nil
}

// recount writes the true member count of a bank
func (db *DB) recount(ctx context.Context, q querier, bankID string) error {
	_, err := q.ExecContext(ctx, db.dialect.rebind(
		`UPDATE question_banks
		 SET question_count = (SELECT COUNT(*) FROM bank_questions WHERE bank_id = ?), updated_at = ?
		 WHERE id = ?`),
		bankID, time.Now().UTC(), bankID)
	if err != nil {
		return fmt.Errorf("failed to recount questions: %w", err)
	}
	return nil
}

func (db *DB) bankExists(ctx context.Context, q querier, bankID string) error {
	var exists bool
	err := q.QueryRowContext(ctx, db.dialect.rebind("SELECT EXISTS(SELECT 1 FROM question_banks WHERE id = ?)"), bankID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if question bank exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("question bank %s: %w", bankID, ErrNotFound)
	}
	return nil
}

// CreateQuestion creates an active question as the last member of bankID
func (db *DB) CreateQuestion(ctx context.Context, bankID string, p QuestionPayload) (*Question, error) {
	question := questionFromPayload(p, StatusActive)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.bankExists(ctx, tx, bankID); err != nil {
			return err
		}
		if err := db.insertQuestion(ctx, tx, question); err != nil {
			return err
		}
		if err := db.addMember(ctx, tx, bankID, question.ID); err != nil {
			return err
		}
		return db.recount(ctx, tx, bankID)
	})
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// UpdateQuestion applies patch to a stored question
func (db *DB) UpdateQuestion(ctx context.Context, id string, patch QuestionPatch) (*Question, error) {
	var updated Question
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := db.getQuestion(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = patch.ApplyTo(*current)
		updated.Options = assignOptionIDs(updated.Options)
		updated.UpdatedAt = time.Now().UTC()

		optionsJSON, err := json.Marshal(updated.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		categoriesJSON, err := json.Marshal(updated.Categories)
		if err != nil {
			return fmt.Errorf("failed to marshal categories: %w", err)
		}
		_, err = tx.ExecContext(ctx, db.dialect.rebind(
			`UPDATE questions SET question_text = ?, question_type = ?, options = ?, categories = ?,
			 knowledge_category = ?, explanation = ?, difficulty = ?, status = ?, updated_at = ?
			 WHERE id = ?`),
			updated.QuestionText, updated.QuestionType, string(optionsJSON), string(categoriesJSON),
			updated.KnowledgeCategory, updated.Explanation, updated.Difficulty, updated.Status, updated.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetQuestion retrieves a question by ID
func (db *DB) GetQuestion(ctx context.Context, id string) (*Question, error) {
	return db.getQuestion(ctx, db.db, id)
}

// removeMember deletes the membership and the question itself
func (db *DB) removeMember(ctx context.Context, tx *sql.Tx, bankID, questionID string) error {
	res, err := tx.ExecContext(ctx, db.dialect.rebind("DELETE FROM bank_questions WHERE bank_id = ? AND question_id = ?"), bankID, questionID)
	if err != nil {
		return fmt.Errorf("failed to remove question from bank: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove question from bank: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("question %s in bank %s: %w", questionID, bankID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, db.dialect.rebind("DELETE FROM questions WHERE id = ?"), questionID); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

// RemoveQuestionFromBank deletes a question and returns the updated bank
func (db *DB) RemoveQuestionFromBank(ctx context.Context, bankID, questionID string) (*QuestionBank, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.removeMember(ctx, tx, bankID, questionID); err != nil {
			return err
		}
		return db.recount(ctx, tx, bankID)
	})
	if err != nil {
		return nil, err
	}
	return db.GetQuestionBank(ctx, bankID)
}

// CreateQuestionBank creates an empty bank
func (db *DB) CreateQuestionBank(ctx context.Context, p BankPayload) (*QuestionBank, error) {
	now := time.Now().UTC()
	bank := QuestionBank{
		ID:           newID(),
		Name:         p.Name,
		Description:  p.Description,
		SourceType:   p.SourceType,
		Categories:   append([]string{}, p.Categories...),
		SourceMenuID: p.SourceMenuID,
		SourceSopID:  p.SourceSopID,
		Questions:    []BankMember{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	categoriesJSON, err := json.Marshal(bank.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}
	_, err = db.db.ExecContext(ctx, db.dialect.rebind(
		`INSERT INTO question_banks (id, name, description, source_type, categories, source_menu_id, source_sop_id, question_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`),
		bank.ID, bank.Name, bank.Description, bank.SourceType, string(categoriesJSON),
		bank.SourceMenuID, bank.SourceSopID, bank.CreatedAt, bank.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create question bank: %w", err)
	}
	return &bank, nil
}

// UpdateQuestionBank applies patch to a bank. The source type is not part
// of BankPatch and cannot be changed here.
func (db *DB) UpdateQuestionBank(ctx context.Context, id string, patch BankPatch) (*QuestionBank, error) {
	current, err := db.GetQuestionBank(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := patch.ApplyTo(*current)
	categoriesJSON, err := json.Marshal(updated.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}
	_, err = db.db.ExecContext(ctx, db.dialect.rebind(
		"UPDATE question_banks SET name = ?, description = ?, categories = ?, updated_at = ? WHERE id = ?"),
		updated.Name, updated.Description, string(categoriesJSON), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update question bank: %w", err)
	}
	return db.GetQuestionBank(ctx, id)
}

const bankColumns = "id, name, description, source_type, categories, source_menu_id, source_sop_id, question_count, created_at, updated_at"

func scanBank(row rowScanner) (*QuestionBank, error) {
	var b QuestionBank
	var categoriesJSON string
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.SourceType, &categoriesJSON,
		&b.SourceMenuID, &b.SourceSopID, &b.QuestionCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &b.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	return &b, nil
}

// GetQuestionBank retrieves a bank with its members resolved, in order
func (db *DB) GetQuestionBank(ctx context.Context, id string) (*QuestionBank, error) {
	bank, err := scanBank(db.db.QueryRowContext(ctx, db.dialect.rebind("SELECT "+bankColumns+" FROM question_banks WHERE id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("question bank %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question bank: %w", err)
	}

	cols := make([]string, 0, 11)
	for _, c := range strings.Split(questionColumns, ", ") {
		cols = append(cols, "q."+c)
	}
	rows, err := db.db.QueryContext(ctx, db.dialect.rebind(
		"SELECT "+strings.Join(cols, ", ")+` FROM bank_questions bq
		 JOIN questions q ON q.id = bq.question_id
		 WHERE bq.bank_id = ? ORDER BY bq.position`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank questions: %w", err)
	}
	defer rows.Close()

	bank.Questions = []BankMember{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		bank.Questions = append(bank.Questions, Resolved(*q))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank questions: %w", err)
	}
	return bank, nil
}

// ListQuestionBanks retrieves all banks, newest first. Members are returned
// as references only.
func (db *DB) ListQuestionBanks(ctx context.Context) ([]QuestionBank, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT "+bankColumns+" FROM question_banks ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to get question banks: %w", err)
	}
	defer rows.Close()

	var banks []QuestionBank
	index := make(map[string]int)
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question bank: %w", err)
		}
		b.Questions = []BankMember{}
		index[b.ID] = len(banks)
		banks = append(banks, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question banks: %w", err)
	}

	members, err := db.db.QueryContext(ctx, "SELECT bank_id, question_id FROM bank_questions ORDER BY bank_id, position")
	if err != nil {
		return nil, fmt.Errorf("failed to get bank members: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var bankID, questionID string
		if err := members.Scan(&bankID, &questionID); err != nil {
			return nil, fmt.Errorf("failed to scan bank member: %w", err)
		}
		if i, ok := index[bankID]; ok {
			banks[i].Questions = append(banks[i].Questions, Reference(questionID))
		}
	}
	if err = members.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank members: %w", err)
	}
	return banks, nil
}

// AddPendingQuestions stores generated questions in a bank as pending_review
func (db *DB) AddPendingQuestions(ctx context.Context, bankID string, qs []Question) ([]Question, error) {
	now := time.Now().UTC()
	saved := make([]Question, 0, len(qs))
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.bankExists(ctx, tx, bankID); err != nil {
			return err
		}
		for _, q := range qs {
			if q.ID == "" {
				q.ID = newID()
			}
			q.Options = assignOptionIDs(q.Options)
			q.Status = StatusPendingReview
			q.CreatedAt, q.UpdatedAt = now, now
			if err := db.insertQuestion(ctx, tx, q); err != nil {
				return err
			}
			if err := db.addMember(ctx, tx, bankID, q.ID); err != nil {
				return err
			}
			saved = append(saved, q)
		}
		return db.recount(ctx, tx, bankID)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ProcessReviewedAiQuestions activates accepted questions and deletes the
// rejected ones in one transaction. IDs that are not members of the bank
// are ignored.
func (db *DB) ProcessReviewedAiQuestions(ctx context.Context, bankID string, d ReviewDecision) (*QuestionBank, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.bankExists(ctx, tx, bankID); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, id := range d.AcceptedIDs {
			_, err := tx.ExecContext(ctx, db.dialect.rebind(
				`UPDATE questions SET status = ?, updated_at = ?
				 WHERE id = ? AND id IN (SELECT question_id FROM bank_questions WHERE bank_id = ?)`),
				StatusActive, now, id, bankID)
			if err != nil {
				return fmt.Errorf("failed to accept question %s: %w", id, err)
			}
		}
		for _, id := range d.DeletedIDs {
			if err := db.removeMember(ctx, tx, bankID, id); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		return db.recount(ctx, tx, bankID)
	})
	if err != nil {
		return nil, err
	}
	return db.GetQuestionBank(ctx, bankID)
}
