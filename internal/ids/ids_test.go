package ids

import "testing"

func TestGenerator(t *testing.T) {
	g := NewGenerator()
	if g.NextDevice() != 1 || g.NextDevice() != 2 {
		t.Fatalf("Device IDs do not start at 1")
	}
	if g.NextSession() != 1 {
		t.Fatalf("Session IDs are not independent of device IDs")
	}

	restored := NewGenerator()
	restored.Restore(g.Snapshot())
	if got := restored.NextDevice(); got != 3 {
		t.Errorf("NextDevice() after Restore() = %d, want 3", got)
	}
	if got := restored.NextSession(); got != 2 {
		t.Errorf("NextSession() after Restore() = %d, want 2", got)
	}
}
