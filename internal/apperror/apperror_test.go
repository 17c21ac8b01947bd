package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("No user found."),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("Invalid user email."),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("username already taken"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("valid authentication required"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "UserMismatch wraps ErrForbidden",
			err:       UserMismatch(),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("No user found."),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := NotFoundf("No user found with id %d.", 42)
	if err.Error() != "No user found with id 42." {
		t.Errorf("Error() = %q", err.Error())
	}

	verr := ValidationField("email", "invalid email format")
	if verr.Field != "email" {
		t.Errorf("Field = %q, want %q", verr.Field, "email")
	}
	if verr.Error() != "invalid email format" {
		t.Errorf("Error() = %q", verr.Error())
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("No organization found.")
	if err.Unwrap() != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrNotFound)
	}
}
