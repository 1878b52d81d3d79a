package progress

// Tracker receives the events of one long-running operation, such as a
// capture run. OnEvent may be called from several goroutines at once.
type Tracker[E any] interface {
	OnEvent(E)
}

// Func adapts a plain function to a Tracker.
type Func[E any] func(E)

func (f Func[E]) OnEvent(e E) { f(e) }

// Nop returns a Tracker that drops every event.
func Nop[E any]() Tracker[E] { return Func[E](func(E) {}) }

// OrNop returns t, or a Nop tracker if t is nil.
func OrNop[E any](t Tracker[E]) Tracker[E] {
	if t == nil {
		return Nop[E]()
	}
	return t
}
