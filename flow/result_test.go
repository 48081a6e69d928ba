package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
)

type codeError struct{ code int }

func (e codeError) Error() string { return fmt.Sprintf("code %d", e.code) }

type sliceError []string

func (e sliceError) Error() string { return fmt.Sprint([]string(e)) }

func TestResultConstructors(t *testing.T) {
	s := Success[int](nil)
	if !s.IsSuccess() || s.IsFailure() {
		t.Fatal("expected success")
	}
	if s.Items() == nil || len(s.Items()) != 0 {
		t.Errorf("expected empty non-nil items, got %#v", s.Items())
	}
	if s.Err() != nil {
		t.Errorf("expected nil error, got %v", s.Err())
	}

	boom := errors.New("boom")
	f := Failure[int](boom)
	if !f.IsFailure() || f.IsSuccess() {
		t.Fatal("expected failure")
	}
	if f.Err() != boom || f.Items() != nil {
		t.Errorf("unexpected failure contents %v %v", f.Err(), f.Items())
	}

	if (Result[int]{}).Status() != "invalid" {
		t.Error("expected zero result to be invalid")
	}
}

func TestFailureNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Failure[int](nil)
}

func TestResultJSON(t *testing.T) {
	tests := []struct {
		name string
		r    Result[int]
		want string
	}{
		{"success", Success([]int{1, 2}), `{"status":"success","items":[1,2]}`},
		{"empty", Success[int](nil), `{"status":"success","items":[]}`},
		{"failure", Failure[int](errors.New("disk gone")), `{"status":"failure","error":"disk gone"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.r)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tc.want {
				t.Errorf("expected %s, got %s", tc.want, data)
			}

			var back Result[int]
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatal(err)
			}
			if back.Status() != tc.r.Status() {
				t.Errorf("expected status %s, got %s", tc.r.Status(), back.Status())
			}
			if tc.r.IsFailure() && back.Err().Error() != tc.r.Err().Error() {
				t.Errorf("expected error %q, got %q", tc.r.Err(), back.Err())
			}
		})
	}

	if _, err := json.Marshal(Result[int]{}); err == nil {
		t.Error("expected marshalling an invalid result to fail")
	}
	var r Result[int]
	if err := json.Unmarshal([]byte(`{"status":"pending"}`), &r); err == nil {
		t.Error("expected unknown status to fail")
	}
}

func TestDefaultErrorEqual(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		a, b error
		want bool
	}{
		{"same pointer", boom, boom, true},
		{"distinct pointers", errors.New("boom"), errors.New("boom"), false},
		{"equal values", codeError{1}, codeError{1}, true},
		{"different values", codeError{1}, codeError{2}, false},
		{"different types", codeError{1}, boom, false},
		{"incomparable", sliceError{"a"}, sliceError{"a"}, false},
		{"sentinel", io.EOF, io.EOF, true},
		{"both nil", nil, nil, true},
		{"one nil", boom, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultErrorEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestSameResult(t *testing.T) {
	boom := errors.New("boom")
	eq := DefaultEqual[int]
	tests := []struct {
		name string
		a, b Result[int]
		want bool
	}{
		{"equal items", Success([]int{1, 2}), Success([]int{1, 2}), true},
		{"different order", Success([]int{1, 2}), Success([]int{2, 1}), false},
		{"different length", Success([]int{1}), Success([]int{1, 2}), false},
		{"both empty", Success[int](nil), Success([]int{}), true},
		{"same failure", Failure[int](boom), Failure[int](boom), true},
		{"different failures", Failure[int](boom), Failure[int](errors.New("boom")), false},
		{"success vs failure", Success[int](nil), Failure[int](boom), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameResult(tc.a, tc.b, eq, DefaultErrorEqual); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestSameResultCustomPolicies(t *testing.T) {
	type order struct {
		ID      int
		Touched int
	}
	byID := func(a, b order) bool { return a.ID == b.ID }
	if !SameResult(Success([]order{{1, 10}}), Success([]order{{1, 20}}), byID, DefaultErrorEqual) {
		t.Error("expected custom item equality to ignore Touched")
	}

	byMessage := func(a, b error) bool { return a.Error() == b.Error() }
	if !SameResult(Failure[order](errors.New("x")), Failure[order](errors.New("x")), byID, byMessage) {
		t.Error("expected custom error equality to compare messages")
	}
}

func TestSameResultInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on invalid result")
		}
	}()
	SameResult(Result[int]{}, Success[int](nil), DefaultEqual[int], DefaultErrorEqual)
}
