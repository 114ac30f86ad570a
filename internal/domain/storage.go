package domain

// PersistResult reports the outcome of one write of a recency namespace.
type PersistResult struct {
	Namespace string
	Entries   int
	Err       error
}

// PersistObserver receives the result of every persist attempt.
// Calls happen on the writer goroutine and must not block.
type PersistObserver interface {
	OnPersist(result PersistResult)
}

// PersistObserverFunc adapts a function to PersistObserver.
type PersistObserverFunc func(PersistResult)

func (f PersistObserverFunc) OnPersist(result PersistResult) { f(result) }

// NoOpObserver discards persist results (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnPersist(PersistResult) {}
