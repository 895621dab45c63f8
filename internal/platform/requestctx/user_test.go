package requestctx

import (
	"context"
	"testing"
)

func TestUserIDFromContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-42")
	}
}

func TestSubjectFromContextTrims(t *testing.T) {
	ctx := WithSubject(context.Background(), "  auth|abc  ")
	if got := SubjectFromContext(ctx); got != "auth|abc" {
		t.Fatalf("SubjectFromContext = %q, want %q", got, "auth|abc")
	}
}

func TestFromContextEmpty(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty user id, got %q", got)
	}
	if got := SubjectFromContext(nil); got != "" {
		t.Fatalf("expected empty subject for nil context, got %q", got)
	}
}

func TestWithUserIDNilContext(t *testing.T) {
	ctx := WithUserID(nil, "user-99")
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if got := UserIDFromContext(ctx); got != "user-99" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-99")
	}
}
