package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("attack: %w", New(CodeBattleAlreadyResolved, "battle b-1 is defender_win"))
	if !stderrors.Is(err, New(CodeBattleAlreadyResolved, "")) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, New(CodeBattleNotFound, "")) {
		t.Fatal("expected different code not to match")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(Wrap(CodeForbidden, "nope", stderrors.New("cause"))); got != CodeForbidden {
		t.Fatalf("code = %s, want %s", got, CodeForbidden)
	}
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %s, want %s", got, CodeUnknown)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidInput:          http.StatusBadRequest,
		CodeUnauthorized:          http.StatusUnauthorized,
		CodeForbidden:             http.StatusForbidden,
		CodeBattleNotFound:        http.StatusNotFound,
		CodeBattleAlreadyResolved: http.StatusConflict,
		CodeUnknown:               http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s status = %d, want %d", code, got, want)
		}
	}
}

func TestUserMessageHidesInternalErrors(t *testing.T) {
	if got := UserMessage(stderrors.New("sqlite: disk I/O error"), ""); got != "Something went wrong. Please try again." {
		t.Fatalf("message = %q", got)
	}
	got := UserMessage(WithMetadata(CodeInvalidInput, "damage must be positive", map[string]string{"Field": "damage"}), "en-US")
	if got != "Invalid damage." {
		t.Fatalf("message = %q", got)
	}
}
