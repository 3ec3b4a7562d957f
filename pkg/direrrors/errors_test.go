package direrrors

import (
	"context"
	"errors"
	"testing"
)

func TestClassOfWrappedError(t *testing.T) {
	err := Wrap(Integrity, "hash mismatch", errors.New("boom"))
	if ClassOf(err) != Integrity {
		t.Fatalf("ClassOf = %v, want Integrity", ClassOf(err))
	}
}

func TestClassOfIntegrityError(t *testing.T) {
	err := &IntegrityError{Message: "mismatch", Expected: "aa", Actual: "bb"}
	if ClassOf(err) != Integrity {
		t.Fatalf("ClassOf = %v, want Integrity", ClassOf(err))
	}
	if !IsAuthExpired(New(AuthExpired, "expired")) {
		t.Fatal("expected AuthExpired to classify as auth expired")
	}
}

func TestClassOfDecryptionError(t *testing.T) {
	err := &DecryptionError{Message: "bad key", Cause: errors.New("inner")}
	if ClassOf(err) != Decryption {
		t.Fatalf("ClassOf = %v, want Decryption", ClassOf(err))
	}
	if errors.Unwrap(err) == nil {
		t.Fatal("expected DecryptionError to unwrap its cause")
	}
}

func TestClassOfDefaultsToTransport(t *testing.T) {
	if ClassOf(errors.New("plain")) != Transport {
		t.Fatal("expected an unclassified stdlib error to default to Transport")
	}
}

func TestIsCancellation(t *testing.T) {
	err := Wrap(Cancellation, "canceled", context.Canceled)
	if !IsCancellation(err) {
		t.Fatal("expected Cancellation kind to report IsCancellation")
	}
	if IsCancellation(New(Transport, "timeout")) {
		t.Fatal("Transport must not report as cancellation")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(Transport, "fetch failed", errors.New("connection reset"))
	got := err.Error()
	want := "transport: fetch failed: connection reset"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestValidationfAndFatalf(t *testing.T) {
	if k := ClassOf(Validationf("bad %s", "uid")); k != Validation {
		t.Fatalf("Validationf kind = %v, want Validation", k)
	}
	if k := ClassOf(Fatalf("invariant broken: %d", 3)); k != FatalInvariant {
		t.Fatalf("Fatalf kind = %v, want FatalInvariant", k)
	}
}
