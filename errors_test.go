package devcert

import (
	"errors"
	"io"
	"testing"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	// WHY: Callers branch on the kind while logs need the cause; both must be
	// reachable through errors.Is from the same value.
	t.Parallel()

	err := error(newError(ErrBundling, "encoding PKCS#12", io.ErrUnexpectedEOF))
	if !errors.Is(err, ErrBundling) {
		t.Error("expected errors.Is(err, ErrBundling)")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected errors.Is(err, io.ErrUnexpectedEOF)")
	}
	if errors.Is(err, ErrIssuance) {
		t.Error("unexpected match with ErrIssuance")
	}
	if got, want := err.Error(), "encoding PKCS#12: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorf_NoCause(t *testing.T) {
	// WHY: errorf builds kind-only errors; Error() must not print a trailing
	// ": <nil>".
	t.Parallel()

	err := errorf(ErrConfiguration, "unsupported key size %d", 512)
	if got, want := err.Error(), "unsupported key size 512"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Error("expected errors.Is(err, ErrConfiguration)")
	}
	var target *Error
	if !errors.As(err, &target) || target.Kind != ErrConfiguration {
		t.Errorf("errors.As did not yield the *Error with its kind: %+v", target)
	}
}
