package progress

import "testing"

func TestFunc(t *testing.T) {
	var got []int
	var tr Tracker[int] = Func[int](func(n int) { got = append(got, n) })
	tr.OnEvent(1)
	tr.OnEvent(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got %v, want [1 2]", got)
	}
}

func TestOrNop(t *testing.T) {
	OrNop[string](nil).OnEvent("dropped")

	calls := 0
	tr := OrNop[string](Func[string](func(string) { calls++ }))
	tr.OnEvent("kept")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
