package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWalksWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("question %q: %w", "q9", ErrQuestionNotFound)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("expected not found kind, got %v", KindOf(wrapped))
	}
	if !errors.Is(wrapped, ErrQuestionNotFound) {
		t.Fatalf("expected wrapped sentinel to match")
	}
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatalf("expected unknown kind for plain errors")
	}
	if KindOf(nil) != KindUnknown {
		t.Fatalf("expected unknown kind for nil")
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindNotFound:    "not_found",
		KindConflict:    "conflict",
		KindForbidden:   "forbidden",
		KindValidation:  "validation",
		KindUnavailable: "unavailable",
		KindUnknown:     "unknown",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Fatalf("expected %s, got %s", want, kind.String())
		}
	}
}

func TestExamCanManage(t *testing.T) {
	exam := Exam{OwnerID: "owner", Graders: []string{"g1"}}
	if !exam.CanManage("owner") || !exam.CanManage("g1") {
		t.Fatalf("owner and grader should manage")
	}
	if exam.CanManage("student") || exam.CanManage("") {
		t.Fatalf("others should not manage")
	}
}
