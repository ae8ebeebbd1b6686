package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

// stackContains checks if any frame in pcs contains the given function name substring.
func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

func TestNew_HasStackWithCaller(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q, want boom", err.Error())
	}
	hs, ok := err.(interface{ StackPCs() []uintptr })
	if !ok {
		t.Fatal("New should return a stacked error")
	}
	if !stackContains(hs.StackPCs(), "TestNew_HasStackWithCaller") {
		t.Fatal("stack should include the calling test")
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("chain id %d mismatch", 11155111)
	if err.Error() != "chain id 11155111 mismatch" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	err := Wrapf(errSentinel, "mint %s", "pnt")
	if err.Error() != "mint pnt: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should see the sentinel")
	}
	hp, ok := err.(interface{ PC() uintptr })
	if !ok || hp.PC() == 0 {
		t.Fatal("Wrap should capture a caller PC")
	}
	fr, _ := runtime.CallersFrames([]uintptr{hp.PC()}).Next()
	if !strings.Contains(fr.Function, "TestWrap_MessageAndUnwrap") {
		t.Fatalf("PC resolves to %s, want test function", fr.Function)
	}
}

func TestEnsureTrace_Idempotent(t *testing.T) {
	first := EnsureTrace(errSentinel)
	if first == errSentinel {
		t.Fatal("plain error should gain a stack")
	}
	if again := EnsureTrace(first); again != first {
		t.Fatal("EnsureTrace on stacked error should return it unchanged")
	}
	wrapped := fmt.Errorf("outer: %w", first)
	if EnsureTrace(wrapped) != wrapped {
		t.Fatal("stack deeper in chain should be detected")
	}
}

func TestPublic_InfoAndUnwrap(t *testing.T) {
	inner := errors.New("execution reverted: balance > 0")
	err := Wrap(Public(inner, http.StatusBadRequest, "Address already owns an SBT"), "mint sbt")

	status, msg, ok := PublicInfo(err)
	if !ok {
		t.Fatal("PublicInfo should find the marker through Wrap")
	}
	if status != http.StatusBadRequest || msg != "Address already owns an SBT" {
		t.Fatalf("got (%d, %q)", status, msg)
	}
	if !errors.Is(err, inner) {
		t.Fatal("Public should unwrap to the inner error")
	}
	if !strings.Contains(err.Error(), "execution reverted") {
		t.Fatalf("Error() should keep internal detail, got %q", err.Error())
	}
}

func TestPublic_NilInner(t *testing.T) {
	err := Public(nil, http.StatusForbidden, "Invalid admin key")
	if err.Error() != "Invalid admin key" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if _, _, ok := PublicInfo(errSentinel); ok {
		t.Fatal("plain error should not report public info")
	}
}
