package query

import "time"

// Status names the variant of a State.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusRefetching Status = "refetching"
)

// State is the observable state of a Runner. It is one of Idle, Loading,
// Success, Error or Refetching.
type State[T any] interface {
	Status() Status
	isState()
}

// Idle is the state before the first fetch and after the cached entry was
// removed.
type Idle[T any] struct{}

// Loading is a fetch without a previous value to show.
type Loading[T any] struct{}

// Success holds the latest value and when it was fetched.
type Success[T any] struct {
	Data      T
	FetchedAt time.Time
}

// Error is a fetch that failed after exhausting its retries.
type Error[T any] struct {
	Err   error
	Stack string
}

// Refetching is a fetch in flight while the previous value stays visible.
type Refetching[T any] struct {
	PreviousData T
	FetchedAt    time.Time
}

func (Idle[T]) Status() Status       { return StatusIdle }
func (Loading[T]) Status() Status    { return StatusLoading }
func (Success[T]) Status() Status    { return StatusSuccess }
func (Error[T]) Status() Status      { return StatusError }
func (Refetching[T]) Status() Status { return StatusRefetching }

func (Idle[T]) isState()       {}
func (Loading[T]) isState()    {}
func (Success[T]) isState()    {}
func (Error[T]) isState()      {}
func (Refetching[T]) isState() {}

// DataOf returns the value a state can display: the data of Success or the
// previous data of Refetching.
func DataOf[T any](s State[T]) (T, bool) {
	switch v := s.(type) {
	case Success[T]:
		return v.Data, true
	case Refetching[T]:
		return v.PreviousData, true
	}
	var zero T
	return zero, false
}

// MutationState is the observable state of a Mutation. It is one of
// MutationIdle, MutationLoading, MutationSuccess or MutationError.
type MutationState[T any] interface {
	Status() Status
	isMutationState()
}

type MutationIdle[T any] struct{}

type MutationLoading[T any] struct{}

type MutationSuccess[T any] struct {
	Data T
}

type MutationError[T any] struct {
	Err error
}

func (MutationIdle[T]) Status() Status    { return StatusIdle }
func (MutationLoading[T]) Status() Status { return StatusLoading }
func (MutationSuccess[T]) Status() Status { return StatusSuccess }
func (MutationError[T]) Status() Status   { return StatusError }

func (MutationIdle[T]) isMutationState()    {}
func (MutationLoading[T]) isMutationState() {}
func (MutationSuccess[T]) isMutationState() {}
func (MutationError[T]) isMutationState()   {}
