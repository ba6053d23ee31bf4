package logging

import (
	"errors"
	"testing"
)

func TestOperationErrorFormatting(t *testing.T) {
	base := errors.New("boom")

	err := NewOperationError("repository.save_rating", "req-1", base)
	if err.Error() != "repository.save_rating (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}

	err = NewOperationError("usecase.analyze", "", base)
	if err.Error() != "usecase.analyze: boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestNewOperationErrorDoesNotDoubleWrap(t *testing.T) {
	if NewOperationError("op", "req", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	first := NewOperationError("op", "req", errors.New("boom"))
	second := NewOperationError("op", "req", first)
	if first != second {
		t.Fatal("expected same operation error to be returned unchanged")
	}

	outer := NewOperationError("outer", "req", first)
	var opErr *OperationError
	if !errors.As(outer, &opErr) || opErr.Operation != "outer" {
		t.Fatalf("expected outer operation, got %v", outer)
	}
}
