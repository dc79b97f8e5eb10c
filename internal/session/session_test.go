package session

import (
	"errors"
	"testing"
	"time"
)

func TestBeginActionIgnoresReentrantSubmit(t *testing.T) {
	s := New("s1", "g1")
	s.Lock()
	defer s.Unlock()

	if !s.BeginAction(ActionTranslate) {
		t.Fatal("first begin should succeed")
	}
	if s.BeginAction(ActionTranslate) {
		t.Fatal("begin while in flight must be a no-op")
	}
	if s.ActionState(ActionTranslate) != InFlight {
		t.Fatalf("expected in_flight, got %s", s.ActionState(ActionTranslate))
	}
}

func TestFinishActionClearsOnBothPaths(t *testing.T) {
	s := New("s1", "g1")
	s.Lock()
	defer s.Unlock()

	s.BeginAction(ActionTranslate)
	s.FinishAction(ActionTranslate, nil)
	if s.ActionState(ActionTranslate) != Succeeded {
		t.Fatalf("expected succeeded, got %s", s.ActionState(ActionTranslate))
	}
	if !s.BeginAction(ActionTranslate) {
		t.Fatal("action must be restartable after success")
	}
	s.FinishAction(ActionTranslate, errors.New("boom"))
	if s.ActionState(ActionTranslate) != Failed {
		t.Fatalf("expected failed, got %s", s.ActionState(ActionTranslate))
	}
	if !s.BeginAction(ActionTranslate) {
		t.Fatal("action must be restartable after failure")
	}
}

func TestActionsAreIndependent(t *testing.T) {
	s := New("s1", "g1")
	s.Lock()
	defer s.Unlock()

	s.BeginAction(ActionTranslate)
	if !s.BeginAction(ActionTestRun) {
		t.Fatal("test run must not be blocked by an in-flight translate")
	}
}

func TestBusyCoversConversationActionsOnly(t *testing.T) {
	s := New("s1", "g1")
	s.Lock()
	defer s.Unlock()

	if s.Busy() {
		t.Fatal("fresh session should not be busy")
	}
	s.BeginAction(ActionTestRun)
	if s.Busy() {
		t.Fatal("a test run alone should not show the thinking indicator")
	}
	s.BeginAction(ActionTranslate)
	if !s.Busy() {
		t.Fatal("an in-flight translate must show the thinking indicator")
	}
}

func TestArmTestResetsConsole(t *testing.T) {
	s := New("s1", "g1")
	s.Test.Error = "old failure"
	s.Test.Raw = map[string]string{"x": "1"}

	s.ArmTest(nil)
	if s.Test.Error != "" || len(s.Test.Raw) != 0 || s.Test.Result != nil {
		t.Fatalf("ArmTest must discard prior console state: %+v", s.Test)
	}
}

func TestRegistryCreateGetDelete(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Stop()

	s := r.Create("g1")
	if got := r.Get(s.ID); got != s {
		t.Fatal("expected to get the created session back")
	}
	r.Delete(s.ID)
	if r.Get(s.ID) != nil {
		t.Fatal("expected session gone after delete")
	}
}
