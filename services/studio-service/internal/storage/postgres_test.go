package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/inkform/inkform/services/studio-service/internal/model"
)

func TestIntakeInsert(t *testing.T) {
	form := testForm()
	form.Answers[model.QAllergies] = true
	form.Details[model.QAllergies] = "latex"

	query, args := intakeInsert("appt-1", form)

	// appointment id, 20 answers, 4 details, place, date, 2 signatures
	if len(args) != 1+20+4+4 {
		t.Fatalf("unexpected arg count %d", len(args))
	}
	if !strings.Contains(query, "allergies_details") || !strings.Contains(query, "$29") {
		t.Fatalf("unexpected query: %s", query)
	}
	if args[0] != "appt-1" {
		t.Fatalf("expected appointment id first, got %v", args[0])
	}
	if args[21] != "latex" {
		t.Fatalf("expected allergy details at 21, got %v", args[21])
	}
	if args[22] != nil {
		t.Fatalf("expected nil details for unanswered question, got %v", args[22])
	}
}

func TestClassify(t *testing.T) {
	if err := classify("op", ErrInvalidState); err != ErrInvalidState {
		t.Fatalf("domain errors must pass through, got %v", err)
	}
	err := classify("op", errors.New("boom"))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if classify("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestValidID(t *testing.T) {
	if validID("not-a-uuid") {
		t.Fatalf("expected invalid")
	}
	if !validID("7b0f8f5e-2f4b-4a55-9d77-5d1d2a0f3c11") {
		t.Fatalf("expected valid")
	}
}
