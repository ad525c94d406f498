// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrorCodeRuleNotFound, "rule r1 not found")

	if err.Code != ErrorCodeRuleNotFound {
		t.Errorf("Wrong code: %s", err.Code)
	}
	if err.StatusCode != 404 {
		t.Errorf("RULE_NOT_FOUND should map to 404, got %d", err.StatusCode)
	}
	if err.Error() != "RULE_NOT_FOUND: rule r1 not found" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	inner := stderrors.New("connection refused")
	err := Wrap(inner, ErrorCodeRuleFetchFailed, "rule fetch failed")

	if !stderrors.Is(err, inner) {
		t.Error("Wrapped error should unwrap to the inner error")
	}
	if err.StatusCode != 500 {
		t.Errorf("RULE_FETCH_FAILED should map to 500, got %d", err.StatusCode)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrorCodeValidation:   400,
		ErrorCodeRuleInvalid:  400,
		ErrorCodeEventInvalid: 400,
		ErrorCodeUnauthorized: 401,
		ErrorCodeNotFound:     404,
		ErrorCodeRuleNotFound: 404,
		ErrorCodeConflict:     409,
		ErrorCodeTimeout:      408,
		ErrorCodeTelegramAPI:  500,
		ErrorCodePGQuery:      500,
	}

	for code, want := range cases {
		if got := New(code, "x").StatusCode; got != want {
			t.Errorf("StatusCode(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestIsErrorCode(t *testing.T) {
	err := New(ErrorCodeConflict, "version mismatch")

	if !IsErrorCode(err, ErrorCodeConflict) {
		t.Error("IsErrorCode should match the error's code")
	}
	if IsErrorCode(err, ErrorCodeNotFound) {
		t.Error("IsErrorCode should not match a different code")
	}
	if IsErrorCode(stderrors.New("plain"), ErrorCodeConflict) {
		t.Error("Plain errors have no code")
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(New(ErrorCodeTelegramAPI, "x")); got != ErrorCodeTelegramAPI {
		t.Errorf("Wrong code: %s", got)
	}
	if got := GetErrorCode(stderrors.New("plain")); got != ErrorCodeInternal {
		t.Errorf("Plain errors should default to INTERNAL_ERROR, got %s", got)
	}
}

func TestAddDetail(t *testing.T) {
	err := New(ErrorCodeRuleInvalid, "bad rule").AddDetail("field", "pattern")

	if err.Details["field"] != "pattern" {
		t.Errorf("Detail not recorded: %v", err.Details)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("chat_id", "must be an integer")

	if err.Code != ErrorCodeValidation || err.StatusCode != 400 {
		t.Errorf("Unexpected validation error: %+v", err)
	}
}
