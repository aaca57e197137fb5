package chat

import "testing"

func TestSession_AppendOrder(t *testing.T) {
	s := NewSession("s1")
	s.AppendUser("hello")
	s.AppendAssistant("hi")
	s.AppendUser("symptoms?")

	turns := s.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	want := []Turn{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "symptoms?"},
	}
	for i, w := range want {
		if turns[i] != w {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], w)
		}
	}
}

func TestSession_TurnsReturnsCopy(t *testing.T) {
	s := NewSession("s1")
	s.AppendUser("a")
	turns := s.Turns()
	turns[0].Content = "mutated"
	if s.Turns()[0].Content != "a" {
		t.Error("Turns must return a copy")
	}
}

func TestSession_DetectionConsumedOnce(t *testing.T) {
	s := NewSession("s1")
	s.StageDetection(Detection{ClassName: "Tomato_Early_blight", KBSlug: "early-blight", Confidence: 91.2})

	d, ok := s.TakeDetection()
	if !ok || d.KBSlug != "early-blight" {
		t.Fatalf("TakeDetection = (%+v, %v)", d, ok)
	}
	if _, ok := s.TakeDetection(); ok {
		t.Error("detection must be single-use")
	}
}

func TestSession_StageReplacesPending(t *testing.T) {
	s := NewSession("s1")
	s.StageDetection(Detection{KBSlug: "early-blight"})
	s.StageDetection(Detection{KBSlug: "late-blight"})
	d, _ := s.TakeDetection()
	if d.KBSlug != "late-blight" {
		t.Errorf("pending detection = %q, want replacement", d.KBSlug)
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession("s1")
	s.AppendUser("a")
	s.StageDetection(Detection{KBSlug: "early-blight"})
	s.Reset()
	if len(s.Turns()) != 0 {
		t.Error("turns not cleared")
	}
	if _, ok := s.TakeDetection(); ok {
		t.Error("pending detection not cleared")
	}
}
