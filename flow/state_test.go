package flow

import (
	"errors"
	"testing"
)

func alwaysDifferent(a, b Result[int]) bool { return false }

func sameInts(a, b Result[int]) bool {
	return SameResult(a, b, DefaultEqual[int], DefaultErrorEqual)
}

func TestStateSubscribeReceivesCurrentValue(t *testing.T) {
	s := newState[int]()
	ch, cancel := s.Subscribe()
	defer cancel()

	r := <-ch
	if !r.IsSuccess() || len(r.Items()) != 0 {
		t.Errorf("expected Success(empty), got %v", r)
	}
	if s.Subscribers() != 1 {
		t.Errorf("expected 1 subscriber, got %d", s.Subscribers())
	}
}

func TestStateConflatesToLatest(t *testing.T) {
	s := newState[int]()
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 1; i <= 3; i++ {
		if published, _ := s.set(Success([]int{i}), alwaysDifferent); !published {
			t.Fatalf("expected set %d to publish", i)
		}
	}

	r := <-ch
	if got := r.Items(); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected latest value [3], got %v", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected a single pending value, got %v", extra)
	default:
	}
	if got := s.Value().Items(); got[0] != 3 {
		t.Errorf("expected Value [3], got %v", got)
	}
}

func TestStateSkipsEqualValue(t *testing.T) {
	s := newState[int]()
	if published, _ := s.set(Success[int](nil), sameInts); published {
		t.Error("expected Success(empty) to equal the initial state")
	}
	boom := errors.New("boom")
	if published, _ := s.set(Failure[int](boom), sameInts); !published {
		t.Error("expected failure to publish")
	}
	if published, _ := s.set(Failure[int](boom), sameInts); published {
		t.Error("expected the same failure to be skipped")
	}
}

func TestStateCancel(t *testing.T) {
	s := newState[int]()
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Error("expected channel closed after cancel")
	}
	if s.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", s.Subscribers())
	}
	s.set(Success([]int{1}), alwaysDifferent)
}

func TestStateSealAndClose(t *testing.T) {
	s := newState[int]()
	ch, cancel := s.Subscribe()
	defer cancel()
	<-ch

	s.seal()
	if published, sealed := s.set(Success([]int{1}), alwaysDifferent); published || !sealed {
		t.Errorf("expected sealed state to reject set, got published=%v sealed=%v", published, sealed)
	}

	s.close()
	if _, open := <-ch; open {
		t.Error("expected subscriber closed")
	}

	late, lateCancel := s.Subscribe()
	defer lateCancel()
	r, open := <-late
	if !open || !r.IsSuccess() {
		t.Errorf("expected late subscriber to get the final value, got %v open=%v", r, open)
	}
	if _, open := <-late; open {
		t.Error("expected late subscriber channel to be closed")
	}
}
