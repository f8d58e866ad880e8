package result

import (
	"errors"
	"strconv"
	"testing"
)

func TestResultVariants(t *testing.T) {
	ok := OK(42)
	if !ok.IsOK() || ok.IsErr() {
		t.Fatal("OK result reports failure")
	}
	if v, err := ok.Unwrap(); v != 42 || err != nil {
		t.Errorf("Unwrap = (%d, %v)", v, err)
	}

	boom := errors.New("boom")
	failed := Err[int](boom)
	if failed.IsOK() || !failed.IsErr() {
		t.Fatal("Err result reports success")
	}
	if failed.Value() != 0 {
		t.Errorf("failed Value = %d, want zero", failed.Value())
	}
	if !errors.Is(failed.Error(), boom) {
		t.Errorf("Error = %v", failed.Error())
	}
	if failed.UnwrapOr(7) != 7 {
		t.Error("UnwrapOr ignored default")
	}
}

func TestErrNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Err(nil) did not panic")
		}
	}()
	_ = Err[string](nil)
}

func TestFromDropsValueOnError(t *testing.T) {
	r := From("ignored", errors.New("x"))
	if r.Value() != "" {
		t.Errorf("value kept on failure: %q", r.Value())
	}
}

func TestMap(t *testing.T) {
	r := Map(OK(12), strconv.Itoa)
	if r.MustUnwrap() != "12" {
		t.Errorf("Map = %q", r.Value())
	}

	boom := errors.New("boom")
	f := Map(Err[int](boom), strconv.Itoa)
	if !errors.Is(f.Error(), boom) {
		t.Errorf("Map lost the error: %v", f.Error())
	}
}

func TestPartitionAndAll(t *testing.T) {
	boom := errors.New("boom")
	values, errs := Partition(OK(1), Err[int](boom), OK(3))
	if len(values) != 2 || len(errs) != 1 {
		t.Fatalf("Partition = %v, %v", values, errs)
	}

	if _, err := All(OK(1), Err[int](boom)); !errors.Is(err, boom) {
		t.Errorf("All error = %v", err)
	}
	if _, err := All[int](); !errors.Is(err, ErrNoResult) {
		t.Errorf("All() error = %v", err)
	}
	got, err := All(OK(1), OK(2))
	if err != nil || len(got) != 2 {
		t.Errorf("All = %v, %v", got, err)
	}
}
