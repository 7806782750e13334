package questionbank

import (
	"fmt"
	"strings"
)

// QuestionDraft is the form state of a question being created or edited
type QuestionDraft struct {
	QuestionText      string            `json:"questionText"`
	QuestionType      QuestionType      `json:"questionType"`
	Options           []Option          `json:"options"`
	Categories        []string          `json:"categories"`
	KnowledgeCategory KnowledgeCategory `json:"knowledgeCategory,omitempty"`
	Explanation       string            `json:"explanation,omitempty"`
	Difficulty        Difficulty        `json:"difficulty,omitempty"`
}

// DraftFromQuestion projects a stored question into form state
func DraftFromQuestion(q Question) QuestionDraft {
	return QuestionDraft{
		QuestionText:      q.QuestionText,
		QuestionType:      q.QuestionType,
		Options:           copyOptions(q.Options),
		Categories:        append([]string(nil), q.Categories...),
		KnowledgeCategory: q.KnowledgeCategory,
		Explanation:       q.Explanation,
		Difficulty:        q.Difficulty,
	}
}

// QuestionPayload is a validated, normalized question ready for the store
type QuestionPayload struct {
	QuestionText      string            `json:"questionText"`
	QuestionType      QuestionType      `json:"questionType"`
	Options           []Option          `json:"options"`
	Categories        []string          `json:"categories"`
	KnowledgeCategory KnowledgeCategory `json:"knowledgeCategory,omitempty"`
	Explanation       string            `json:"explanation,omitempty"`
	Difficulty        Difficulty        `json:"difficulty,omitempty"`
}

// ValidateQuestion checks a draft and returns the first violated rule as a
// *ValidationError, or nil. Rules are checked in a fixed order and errors
// are never aggregated.
func ValidateQuestion(d QuestionDraft) error {
	if isBlank(d.QuestionText) {
		return newValidationError(EmptyQuestionText)
	}
	if d.QuestionType != TypeTrueFalse {
		for _, o := range d.Options {
			if isBlank(o.Text) {
				return newValidationError(EmptyOptionText)
			}
		}
	}
	correct := countCorrect(d.Options)
	switch d.QuestionType {
	case TypeSingleChoice, TypeTrueFalse:
		if correct != 1 {
			return newValidationError(InvalidCorrectCount)
		}
	case TypeMultipleChoice:
		if correct < 1 {
			return newValidationError(InvalidCorrectCount)
		}
	}
	if len(cleanCategories(d.Categories)) == 0 {
		return newValidationError(EmptyCategories)
	}
	return nil
}

// NormalizeQuestion validates d and returns the trimmed payload. An empty
// type is treated as single-choice, the form default.
func NormalizeQuestion(d QuestionDraft) (QuestionPayload, error) {
	if d.QuestionType == "" {
		d.QuestionType = TypeSingleChoice
	}
	if !d.QuestionType.Valid() {
		return QuestionPayload{}, fmt.Errorf("unknown question type %q", d.QuestionType)
	}
	if err := ValidateQuestion(d); err != nil {
		return QuestionPayload{}, err
	}
	if d.KnowledgeCategory != "" && !d.KnowledgeCategory.Valid() {
		return QuestionPayload{}, fmt.Errorf("unknown knowledge category %q", d.KnowledgeCategory)
	}
	if !d.Difficulty.Valid() {
		return QuestionPayload{}, fmt.Errorf("unknown difficulty %q", d.Difficulty)
	}

	var options []Option
	if d.QuestionType == TypeTrueFalse {
		tf, err := canonicalTrueFalse(d.Options)
		if err != nil {
			return QuestionPayload{}, err
		}
		options = tf
	} else {
		if n := len(d.Options); n < MinOptions || n > MaxOptions {
			return QuestionPayload{}, fmt.Errorf("%s questions need %d to %d options, got %d", d.QuestionType, MinOptions, MaxOptions, n)
		}
		options = make([]Option, len(d.Options))
		for i, o := range d.Options {
			options[i] = Option{ID: o.ID, Text: strings.TrimSpace(o.Text), IsCorrect: o.IsCorrect}
		}
	}

	return QuestionPayload{
		QuestionText:      strings.TrimSpace(d.QuestionText),
		QuestionType:      d.QuestionType,
		Options:           options,
		Categories:        cleanCategories(d.Categories),
		KnowledgeCategory: d.KnowledgeCategory,
		Explanation:       strings.TrimSpace(d.Explanation),
		Difficulty:        d.Difficulty,
	}, nil
}

// canonicalTrueFalse maps a true-false draft's two options onto the fixed
// True/False pair. A blank option text takes the canonical text for its
// position; any other text must name True or False.
func canonicalTrueFalse(opts []Option) ([]Option, error) {
	if len(opts) != 2 {
		return nil, fmt.Errorf("true-false questions need exactly the True and False options, got %d", len(opts))
	}
	out := CanonicalOptions(TypeTrueFalse)
	filled := make([]bool, len(out))
	for i, o := range opts {
		slot := i
		if filled[slot] {
			slot = 1 - i
		}
		if text := strings.TrimSpace(o.Text); text != "" {
			slot = -1
			for j := range out {
				if strings.EqualFold(text, out[j].Text) {
					slot = j
				}
			}
			if slot < 0 {
				return nil, fmt.Errorf("true-false option %q is not True or False", text)
			}
		}
		if filled[slot] {
			return nil, fmt.Errorf("true-false option %q given twice", out[slot].Text)
		}
		filled[slot] = true
		out[slot].ID = o.ID
		out[slot].IsCorrect = o.IsCorrect
	}
	return out, nil
}

// BankDraft is the form state of a question bank
type BankDraft struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SourceType   SourceType `json:"sourceType"`
	Categories   []string   `json:"categories"`
	SourceMenuID string     `json:"sourceMenuId,omitempty"`
	SourceSopID  string     `json:"sourceSopId,omitempty"`
}

// DraftFromBank projects a stored bank into form state
func DraftFromBank(b QuestionBank) BankDraft {
	return BankDraft{
		Name:         b.Name,
		Description:  b.Description,
		SourceType:   b.SourceType,
		Categories:   append([]string(nil), b.Categories...),
		SourceMenuID: b.SourceMenuID,
		SourceSopID:  b.SourceSopID,
	}
}

// BankPayload is a validated bank ready for the store
type BankPayload struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SourceType   SourceType `json:"sourceType"`
	Categories   []string   `json:"categories"`
	SourceMenuID string     `json:"sourceMenuId,omitempty"`
	SourceSopID  string     `json:"sourceSopId,omitempty"`
}

// ValidateBank checks a bank draft. A MENU or SOP bank linked to its
// source must select at least one category; MANUAL banks may start empty.
func ValidateBank(d BankDraft) error {
	if isBlank(d.Name) {
		return newValidationError(EmptyBankName)
	}
	switch d.SourceType {
	case SourceMenu:
		if d.SourceMenuID != "" && len(cleanCategories(d.Categories)) == 0 {
			return newValidationError(EmptyCategories)
		}
	case SourceSOP:
		if d.SourceSopID != "" && len(cleanCategories(d.Categories)) == 0 {
			return newValidationError(EmptyCategories)
		}
	}
	return nil
}

// NormalizeBank validates d and returns the trimmed payload
func NormalizeBank(d BankDraft) (BankPayload, error) {
	if d.SourceType == "" {
		d.SourceType = SourceManual
	}
	if !d.SourceType.Valid() {
		return BankPayload{}, fmt.Errorf("unknown source type %q", d.SourceType)
	}
	if err := ValidateBank(d); err != nil {
		return BankPayload{}, err
	}
	p := BankPayload{
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		SourceType:  d.SourceType,
		Categories:  cleanCategories(d.Categories),
	}
	switch d.SourceType {
	case SourceMenu:
		p.SourceMenuID = d.SourceMenuID
	case SourceSOP:
		p.SourceSopID = d.SourceSopID
	}
	return p, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// cleanCategories trims names and drops blanks and duplicates, keeping order
func cleanCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
