package questionbank

import (
	"reflect"
	"testing"
)

func TestSetTypeCanonicalShape(t *testing.T) {
	types := []QuestionType{TypeSingleChoice, TypeMultipleChoice, TypeTrueFalse}
	for _, from := range types {
		for _, to := range types {
			if from == to {
				continue
			}
			// A draft that started as a third type never restores originals here.
			s := OptionSet{Type: from, Options: CanonicalOptions(from)}
			s = s.AddOption().SetOptionText(0, "edited").SetCorrect(1, true)

			got := s.SetType(to)
			if got.Type != to {
				t.Errorf("%s -> %s: type = %s", from, to, got.Type)
			}
			if !reflect.DeepEqual(got.Options, CanonicalOptions(to)) {
				t.Errorf("%s -> %s: options = %+v, want %+v", from, to, got.Options, CanonicalOptions(to))
			}
		}
	}
}

func TestSetTypeTrueFalseAndBack(t *testing.T) {
	s := NewOptionSet(TypeSingleChoice)

	tf := s.SetType(TypeTrueFalse)
	want := []Option{{Text: "True", IsCorrect: true}, {Text: "False", IsCorrect: false}}
	if !reflect.DeepEqual(tf.Options, want) {
		t.Fatalf("true-false options = %+v, want %+v", tf.Options, want)
	}

	back := tf.SetType(TypeSingleChoice)
	want = []Option{{}, {}}
	if !reflect.DeepEqual(back.Options, want) {
		t.Fatalf("restored options = %+v, want %+v", back.Options, want)
	}
}

func TestSetTypeRestoresOriginalOptions(t *testing.T) {
	q := Question{
		QuestionType: TypeMultipleChoice,
		Options: []Option{
			{ID: "o1", Text: "Salt", IsCorrect: true},
			{ID: "o2", Text: "Pepper", IsCorrect: true},
			{ID: "o3", Text: "Sugar"},
		},
	}
	s := EditOptionSet(q)
	s = s.SetType(TypeTrueFalse).SetType(TypeMultipleChoice)
	if !reflect.DeepEqual(s.Options, q.Options) {
		t.Fatalf("options = %+v, want originals %+v", s.Options, q.Options)
	}
}

func TestSetTypeSameTypeIsNoop(t *testing.T) {
	s := NewOptionSet(TypeSingleChoice).SetOptionText(0, "Paris")
	got := s.SetType(TypeSingleChoice)
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("SetType to current type changed state: %+v", got)
	}
	if got := s.SetType("essay"); !reflect.DeepEqual(got, s) {
		t.Fatalf("SetType to unknown type changed state: %+v", got)
	}
}

func TestAddRemoveStayInBounds(t *testing.T) {
	s := NewOptionSet(TypeMultipleChoice)
	for i := 0; i < 10; i++ {
		s = s.AddOption()
		if n := len(s.Options); n < MinOptions || n > MaxOptions {
			t.Fatalf("after add %d: %d options", i, n)
		}
	}
	if len(s.Options) != MaxOptions {
		t.Fatalf("got %d options, want %d", len(s.Options), MaxOptions)
	}
	for i := 0; i < 10; i++ {
		s = s.RemoveOption(0)
		if n := len(s.Options); n < MinOptions || n > MaxOptions {
			t.Fatalf("after remove %d: %d options", i, n)
		}
	}
	if len(s.Options) != MinOptions {
		t.Fatalf("got %d options, want %d", len(s.Options), MinOptions)
	}

	if got := s.RemoveOption(-1); !reflect.DeepEqual(got, s) {
		t.Errorf("out of range remove changed state")
	}
}

func TestTrueFalseOptionsAreFixed(t *testing.T) {
	s := NewOptionSet(TypeTrueFalse)
	if got := s.AddOption(); len(got.Options) != 2 {
		t.Errorf("add on true-false: %d options", len(got.Options))
	}
	if got := s.RemoveOption(0); len(got.Options) != 2 {
		t.Errorf("remove on true-false: %d options", len(got.Options))
	}
	if got := s.SetOptionText(0, "Yes"); got.Options[0].Text != "True" {
		t.Errorf("text edit on true-false: %q", got.Options[0].Text)
	}
}

func TestSetCorrectExclusive(t *testing.T) {
	for _, typ := range []QuestionType{TypeSingleChoice, TypeTrueFalse} {
		s := NewOptionSet(typ)
		if typ == TypeSingleChoice {
			s = s.AddOption().AddOption()
		}
		seq := []struct {
			index int
			value bool
		}{{0, true}, {1, true}, {1, true}, {2, true}, {0, false}, {1, true}, {3, true}}
		for _, step := range seq {
			s = s.SetCorrect(step.index, step.value)
			if n := s.CorrectCount(); n > 1 {
				t.Fatalf("%s: %d correct after SetCorrect(%d, %v)", typ, n, step.index, step.value)
			}
		}
	}
}

func TestSetCorrectMultipleChoiceAllowsMany(t *testing.T) {
	s := NewOptionSet(TypeMultipleChoice).SetCorrect(0, true).SetCorrect(1, true)
	if n := s.CorrectCount(); n != 2 {
		t.Fatalf("CorrectCount = %d, want 2", n)
	}
}

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	s := NewOptionSet(TypeSingleChoice)
	before := s.clone()

	actions := []OptionAction{
		{Kind: ActionSetOptionText, Index: 0, Text: "Paris"},
		{Kind: ActionSetCorrect, Index: 0, Value: true},
		{Kind: ActionAddOption},
		{Kind: ActionRemoveOption, Index: 2},
		{Kind: ActionSetType, Type: TypeTrueFalse},
		{Kind: "bogus"},
	}
	for _, a := range actions {
		s.Apply(a)
		if !reflect.DeepEqual(s, before) {
			t.Fatalf("Apply(%s) mutated the receiver", a.Kind)
		}
	}

	got := s
	for _, a := range actions[:3] {
		got = got.Apply(a)
	}
	want := []Option{{Text: "Paris", IsCorrect: true}, {}, {}}
	if !reflect.DeepEqual(got.Options, want) {
		t.Fatalf("options = %+v, want %+v", got.Options, want)
	}
}
