package blunder

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrnoAnnotation(t *testing.T) {
	var (
		err error
	)

	err = NewError(NotFoundError, "thing %v not found", 42)
	if Errno(err) != int(unix.ENOENT) {
		t.Fatalf("NewError(NotFoundError, ...) carries errno %v", Errno(err))
	}
	if !Is(err, NotFoundError) {
		t.Fatalf("Is(err, NotFoundError) returned false")
	}
	if Is(err, IOError) {
		t.Fatalf("Is(err, IOError) returned true for a NotFoundError")
	}
	if IsNot(err, NotFoundError) {
		t.Fatalf("IsNot(err, NotFoundError) returned true")
	}

	err = AddError(fmt.Errorf("underlying failure"), IOError)
	if !Is(err, IOError) {
		t.Fatalf("AddError(..., IOError) not recognized by Is()")
	}

	// An unannotated error reports the failure errno, never success
	err = fmt.Errorf("plain error")
	if IsSuccess(err) {
		t.Fatalf("IsSuccess() returned true for a plain error")
	}

	if !IsSuccess(nil) {
		t.Fatalf("IsSuccess(nil) returned false")
	}
	if Errno(nil) != 0 {
		t.Fatalf("Errno(nil) returned %v", Errno(nil))
	}
}

func TestFatalMarker(t *testing.T) {
	var (
		err error
	)

	err = AddError(fmt.Errorf("connection lost mid-body"), BadFileError)
	if IsFatal(err) {
		t.Fatalf("IsFatal() returned true before MarkFatal()")
	}

	err = MarkFatal(err)
	if !IsFatal(err) {
		t.Fatalf("IsFatal() returned false after MarkFatal()")
	}

	// The errno annotation must survive the fatal marking
	if !Is(err, BadFileError) {
		t.Fatalf("errno annotation lost by MarkFatal()")
	}

	if IsFatal(nil) {
		t.Fatalf("IsFatal(nil) returned true")
	}
}
