package errors

import (
	"fmt"
	"testing"
)

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrap_PreservesKind(t *testing.T) {
	err := Wrap(NotFound("image", 7), "record comparison")
	if !Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound in chain, got %v", err)
	}
	if err.Error() != "record comparison: image 7: not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestStorage_MatchesBothErrors(t *testing.T) {
	driverErr := fmt.Errorf("disk I/O error")
	err := Storage(driverErr, "failed to insert comparison")

	if !Is(err, ErrStorage) {
		t.Error("expected ErrStorage in chain")
	}
	if !Is(err, driverErr) {
		t.Error("expected driver error in chain")
	}
	if Is(err, ErrNotFound) {
		t.Error("storage error must not match ErrNotFound")
	}
	if Storage(nil, "ctx") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestExportPartialFailure_Error(t *testing.T) {
	e := &ExportPartialFailure{
		Written: []string{"a"},
		Failures: []ExportFailure{
			{Source: "/x/1.png", Err: fmt.Errorf("missing")},
			{Source: "/x/2.png", Err: fmt.Errorf("missing")},
			{Source: "/x/3.png", Err: fmt.Errorf("missing")},
			{Source: "/x/4.png", Err: fmt.Errorf("missing")},
		},
	}

	var target *ExportPartialFailure
	if !As(Wrap(e, "export"), &target) {
		t.Fatal("expected As to find ExportPartialFailure")
	}
	want := "export partially failed: 1 written, 4 failed; /x/1.png: missing; /x/2.png: missing; /x/3.png: missing; ... and 1 more"
	if target.Error() != want {
		t.Errorf("got %q, want %q", target.Error(), want)
	}
}
