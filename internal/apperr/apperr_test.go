package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("X", "missing"), http.StatusNotFound},
		{Forbidden("X", "nope"), http.StatusForbidden},
		{Conflict("X", "busy"), http.StatusConflict},
		{Validation("X", "bad"), http.StatusBadRequest},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", Conflict("X", "busy")), http.StatusConflict},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(Validation("DEADLINE_PAST", "deadline must be in the future")); got != "DEADLINE_PAST" {
		t.Fatalf("got %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "INTERNAL" {
		t.Fatalf("got %q", got)
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("submit: %w", Forbidden("NOT_A_PARTY", "not a party"))
	if !IsKind(err, KindForbidden) {
		t.Fatal("expected forbidden kind through wrapping")
	}
	if IsKind(err, KindConflict) {
		t.Fatal("kind should not match conflict")
	}
	if IsKind(errors.New("plain"), KindForbidden) {
		t.Fatal("plain error has no kind")
	}
}

func TestErrorString(t *testing.T) {
	err := Conflict("SESSION_NOT_ACTIVE", "session %s is %s", "ses_1", "cancelled")
	want := "SESSION_NOT_ACTIVE: session ses_1 is cancelled"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
