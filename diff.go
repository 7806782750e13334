package questionbank

import (
	"sort"
	"strings"
)

// QuestionPatch holds only the top-level fields that changed. Nil means
// unchanged; the JSON form omits them.
type QuestionPatch struct {
	QuestionText      *string            `json:"questionText,omitempty"`
	QuestionType      *QuestionType      `json:"questionType,omitempty"`
	Options           *[]Option          `json:"options,omitempty"`
	Categories        *[]string          `json:"categories,omitempty"`
	KnowledgeCategory *KnowledgeCategory `json:"knowledgeCategory,omitempty"`
	Explanation       *string            `json:"explanation,omitempty"`
	Difficulty        *Difficulty        `json:"difficulty,omitempty"`
	Status            *QuestionStatus    `json:"status,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p QuestionPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Fields lists the names of the fields the patch sets
func (p QuestionPatch) Fields() []string {
	var f []string
	if p.QuestionText != nil {
		f = append(f, "questionText")
	}
	if p.QuestionType != nil {
		f = append(f, "questionType")
	}
	if p.Options != nil {
		f = append(f, "options")
	}
	if p.Categories != nil {
		f = append(f, "categories")
	}
	if p.KnowledgeCategory != nil {
		f = append(f, "knowledgeCategory")
	}
	if p.Explanation != nil {
		f = append(f, "explanation")
	}
	if p.Difficulty != nil {
		f = append(f, "difficulty")
	}
	if p.Status != nil {
		f = append(f, "status")
	}
	return f
}

// ApplyTo returns q with the patch applied
func (p QuestionPatch) ApplyTo(q Question) Question {
	if p.QuestionText != nil {
		q.QuestionText = *p.QuestionText
	}
	if p.QuestionType != nil {
		q.QuestionType = *p.QuestionType
	}
	if p.Options != nil {
		q.Options = copyOptions(*p.Options)
	}
	if p.Categories != nil {
		q.Categories = append([]string(nil), (*p.Categories)...)
	}
	if p.KnowledgeCategory != nil {
		q.KnowledgeCategory = *p.KnowledgeCategory
	}
	if p.Explanation != nil {
		q.Explanation = *p.Explanation
	}
	if p.Difficulty != nil {
		q.Difficulty = *p.Difficulty
	}
	if p.Status != nil {
		q.Status = *p.Status
	}
	return q
}

// DiffQuestion computes the minimal patch turning original into edited.
//
// Text fields compare trimmed, enums exactly. Categories compare as sorted
// sets. Options compare element-wise on text and correctness, ignoring
// option IDs; order matters. A type change always carries the options,
// since the type redefines what the options mean.
func DiffQuestion(original Question, edited QuestionPayload) QuestionPatch {
	var p QuestionPatch

	if strings.TrimSpace(original.QuestionText) != strings.TrimSpace(edited.QuestionText) {
		text := strings.TrimSpace(edited.QuestionText)
		p.QuestionText = &text
	}
	typeChanged := original.QuestionType != edited.QuestionType
	if typeChanged {
		t := edited.QuestionType
		p.QuestionType = &t
	}
	if typeChanged || !sameOptions(original.Options, edited.Options) {
		opts := copyOptions(edited.Options)
		if opts == nil {
			opts = []Option{}
		}
		p.Options = &opts
	}
	if !sameStringSet(original.Categories, edited.Categories) {
		cats := append([]string{}, edited.Categories...)
		p.Categories = &cats
	}
	if original.KnowledgeCategory != edited.KnowledgeCategory {
		k := edited.KnowledgeCategory
		p.KnowledgeCategory = &k
	}
	if strings.TrimSpace(original.Explanation) != strings.TrimSpace(edited.Explanation) {
		e := strings.TrimSpace(edited.Explanation)
		p.Explanation = &e
	}
	if original.Difficulty != edited.Difficulty {
		d := edited.Difficulty
		p.Difficulty = &d
	}
	return p
}

// PrepareQuestionUpdate validates and normalizes the edited draft and diffs
// it against original. It returns ErrNoChanges when nothing changed.
func PrepareQuestionUpdate(original Question, edited QuestionDraft) (QuestionPatch, error) {
	payload, err := NormalizeQuestion(edited)
	if err != nil {
		return QuestionPatch{}, err
	}
	patch := DiffQuestion(original, payload)
	if patch.IsEmpty() {
		return QuestionPatch{}, ErrNoChanges
	}
	return patch, nil
}

// BankPatch holds the changed fields of a question bank
type BankPatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Categories  *[]string `json:"categories,omitempty"`
}

func (p BankPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Categories == nil
}

// ApplyTo returns b with the patch applied
func (p BankPatch) ApplyTo(b QuestionBank) QuestionBank {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Categories != nil {
		b.Categories = append([]string(nil), (*p.Categories)...)
	}
	return b
}

// DiffBank computes the minimal patch for an edited bank. The source type
// and source link are fixed at creation and never patched.
func DiffBank(original QuestionBank, edited BankPayload) (BankPatch, error) {
	if edited.SourceType != original.SourceType {
		return BankPatch{}, ErrSourceTypeImmutable
	}
	var p BankPatch
	if strings.TrimSpace(original.Name) != strings.TrimSpace(edited.Name) {
		n := strings.TrimSpace(edited.Name)
		p.Name = &n
	}
	if strings.TrimSpace(original.Description) != strings.TrimSpace(edited.Description) {
		d := strings.TrimSpace(edited.Description)
		p.Description = &d
	}
	if !sameStringSet(original.Categories, edited.Categories) {
		cats := append([]string{}, edited.Categories...)
		p.Categories = &cats
	}
	return p, nil
}

// PrepareBankUpdate validates, normalizes and diffs an edited bank. It
// returns ErrNoChanges when nothing changed.
func PrepareBankUpdate(original QuestionBank, edited BankDraft) (BankPatch, error) {
	if edited.SourceType == "" {
		edited.SourceType = original.SourceType
	}
	payload, err := NormalizeBank(edited)
	if err != nil {
		return BankPatch{}, err
	}
	patch, err := DiffBank(original, payload)
	if err != nil {
		return BankPatch{}, err
	}
	if patch.IsEmpty() {
		return BankPatch{}, ErrNoChanges
	}
	return patch, nil
}

// sameOptions compares option lists on text and correctness only. Nil and
// empty lists are equal.
func sameOptions(a, b []Option) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i].Text) != strings.TrimSpace(b[i].Text) || a[i].IsCorrect != b[i].IsCorrect {
			return false
		}
	}
	return true
}

// sameStringSet compares two string lists ignoring order
func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// PayloadFromQuestion projects a stored question into the normalized
// shape DiffQuestion compares against.
func PayloadFromQuestion(q Question) QuestionPayload {
	return QuestionPayload{
		QuestionText:      q.QuestionText,
		QuestionType:      q.QuestionType,
		Options:           copyOptions(q.Options),
		Categories:        append([]string(nil), q.Categories...),
		KnowledgeCategory: q.KnowledgeCategory,
		Explanation:       q.Explanation,
		Difficulty:        q.Difficulty,
	}
}
