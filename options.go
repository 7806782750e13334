package questionbank

const (
	MinOptions = 2
	MaxOptions = 6
)

// OptionSet is the option list of a question being edited, kept in the
// shape its type requires. It is a value: every transition returns a new
// OptionSet and leaves the receiver untouched.
//
// Bounded operations (adding past MaxOptions, removing below MinOptions,
// out of range indexes, edits to true-false options) are no-ops, never
// errors, so duplicate UI triggers cannot corrupt the state.
type OptionSet struct {
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options"`

	// The type and options the entity had when editing started. Switching
	// back to OriginalType restores OriginalOptions verbatim.
	OriginalType    QuestionType `json:"originalType,omitempty"`
	OriginalOptions []Option     `json:"originalOptions,omitempty"`
}

// NewOptionSet starts a fresh draft of type t with its canonical options
func NewOptionSet(t QuestionType) OptionSet {
	opts := CanonicalOptions(t)
	return OptionSet{
		Type:            t,
		Options:         opts,
		OriginalType:    t,
		OriginalOptions: copyOptions(opts),
	}
}

// EditOptionSet starts editing an existing question's options
func EditOptionSet(q Question) OptionSet {
	return OptionSet{
		Type:            q.QuestionType,
		Options:         copyOptions(q.Options),
		OriginalType:    q.QuestionType,
		OriginalOptions: copyOptions(q.Options),
	}
}

// CanonicalOptions returns the option list a question of type t starts with
func CanonicalOptions(t QuestionType) []Option {
	if t == TypeTrueFalse {
		return []Option{
			{Text: "True", IsCorrect: true},
			{Text: "False", IsCorrect: false},
		}
	}
	return []Option{{}, {}}
}

// OptionAction is one user edit to an option set
type OptionAction struct {
	Kind  OptionActionKind `json:"kind"`
	Type  QuestionType     `json:"type,omitempty"`
	Index int              `json:"index,omitempty"`
	Value bool             `json:"value,omitempty"`
	Text  string           `json:"text,omitempty"`
}

type OptionActionKind string

const (
	ActionSetType       OptionActionKind = "setType"
	ActionAddOption     OptionActionKind = "addOption"
	ActionRemoveOption  OptionActionKind = "removeOption"
	ActionSetCorrect    OptionActionKind = "setCorrect"
	ActionSetOptionText OptionActionKind = "setOptionText"
)

// Apply is the transition function: it returns the state after action.
// Unknown actions leave the state unchanged.
func (s OptionSet) Apply(action OptionAction) OptionSet {
	switch action.Kind {
	case ActionSetType:
		return s.SetType(action.Type)
	case ActionAddOption:
		return s.AddOption()
	case ActionRemoveOption:
		return s.RemoveOption(action.Index)
	case ActionSetCorrect:
		return s.SetCorrect(action.Index, action.Value)
	case ActionSetOptionText:
		return s.SetOptionText(action.Index, action.Text)
	}
	return s
}

// SetType changes the question type and resets the options to the
// canonical shape of t, or to the original options when t is the type the
// entity started with.
func (s OptionSet) SetType(t QuestionType) OptionSet {
	if t == s.Type || !t.Valid() {
		return s
	}
	next := s.clone()
	next.Type = t
	if s.OriginalType != "" && t == s.OriginalType {
		next.Options = copyOptions(s.OriginalOptions)
	} else {
		next.Options = CanonicalOptions(t)
	}
	return next
}

// AddOption appends a blank option
func (s OptionSet) AddOption() OptionSet {
	if s.Type == TypeTrueFalse || len(s.Options) >= MaxOptions {
		return s
	}
	next := s.clone()
	next.Options = append(next.Options, Option{})
	return next
}

// RemoveOption drops the option at index
func (s OptionSet) RemoveOption(index int) OptionSet {
	if s.Type == TypeTrueFalse || len(s.Options) <= MinOptions || !s.inRange(index) {
		return s
	}
	next := s.clone()
	next.Options = append(next.Options[:index], next.Options[index+1:]...)
	return next
}

// SetCorrect marks the option at index. For single-choice and true-false
// marking one option correct clears every other option.
func (s OptionSet) SetCorrect(index int, value bool) OptionSet {
	if !s.inRange(index) {
		return s
	}
	next := s.clone()
	if value && s.Type.exclusive() {
		for i := range next.Options {
			next.Options[i].IsCorrect = false
		}
	}
	next.Options[index].IsCorrect = value
	return next
}

// SetOptionText edits the text of the option at index. True-false option
// text is fixed.
func (s OptionSet) SetOptionText(index int, text string) OptionSet {
	if s.Type == TypeTrueFalse || !s.inRange(index) {
		return s
	}
	next := s.clone()
	next.Options[index].Text = text
	return next
}

// CorrectCount returns how many options are marked correct
func (s OptionSet) CorrectCount() int {
	return countCorrect(s.Options)
}

func (s OptionSet) inRange(index int) bool {
	return index >= 0 && index < len(s.Options)
}

func (s OptionSet) clone() OptionSet {
	return OptionSet{
		Type:            s.Type,
		Options:         copyOptions(s.Options),
		OriginalType:    s.OriginalType,
		OriginalOptions: copyOptions(s.OriginalOptions),
	}
}

func copyOptions(opts []Option) []Option {
	if opts == nil {
		return nil
	}
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

func countCorrect(opts []Option) int {
	n := 0
	for _, o := range opts {
		if o.IsCorrect {
			n++
		}
	}
	return n
}
