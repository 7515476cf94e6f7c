package query

import (
	"context"
	"sync"

	"github.com/agentuity/go-query/logger"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MutationFunc performs a write.
type MutationFunc[TData, TVars any] func(ctx context.Context, vars TVars) (TData, error)

// MutationOptions holds the hooks of a Mutation. Every hook is optional.
type MutationOptions[TData, TVars any] struct {
	// OnMutate runs before the mutation, typically to apply an optimistic
	// update. Its result is handed to OnError and OnSettled as the rollback
	// context.
	OnMutate func(ctx context.Context, vars TVars) any
	OnSuccess func(data TData, vars TVars)
	// OnError receives the rollback context returned by OnMutate. Restoring
	// the previous state is up to the hook.
	OnError func(err error, vars TVars, rollback any)
	// OnSettled runs last, after OnSuccess or OnError.
	OnSettled func(data TData, err error, vars TVars, rollback any)

	Logger logger.Logger
	Tracer trace.Tracer
}

// Mutation runs a write with optimistic update hooks. Unlike queries,
// mutations are never retried and their errors are returned to the caller.
type Mutation[TData, TVars any] struct {
	fn     MutationFunc[TData, TVars]
	opts   MutationOptions[TData, TVars]
	logger logger.Logger
	tracer trace.Tracer

	mu    sync.Mutex
	state MutationState[TData]
	subs  subscribers[MutationState[TData]]
}

// NewMutation returns an idle mutation.
func NewMutation[TData, TVars any](fn MutationFunc[TData, TVars], opts MutationOptions[TData, TVars]) *Mutation[TData, TVars] {
	m := &Mutation[TData, TVars]{
		fn:     fn,
		opts:   opts,
		logger: logger.OrDefault(opts.Logger).WithPrefix("[mutation]"),
		tracer: opts.Tracer,
		state:  MutationIdle[TData]{},
	}
	if m.tracer == nil {
		m.tracer = tracer
	}
	return m
}

// Mutate runs OnMutate, the mutation, OnSuccess or OnError, then OnSettled,
// in that order. The mutation error is returned unchanged.
func (m *Mutation[TData, TVars]) Mutate(ctx context.Context, vars TVars) (TData, error) {
	m.set(MutationLoading[TData]{})

	var rollback any
	if m.opts.OnMutate != nil {
		rollback = m.opts.OnMutate(ctx, vars)
	}

	data, err := m.run(ctx, vars)
	if err != nil {
		m.set(MutationError[TData]{Err: err})
		m.logger.Debug("mutation failed: %v", err)
		if m.opts.OnError != nil {
			m.opts.OnError(err, vars, rollback)
		}
		if m.opts.OnSettled != nil {
			var zero TData
			m.opts.OnSettled(zero, err, vars, rollback)
		}
		var zero TData
		return zero, err
	}

	m.set(MutationSuccess[TData]{Data: data})
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(data, vars)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(data, nil, vars, rollback)
	}
	return data, nil
}

func (m *Mutation[TData, TVars]) run(ctx context.Context, vars TVars) (TData, error) {
	ctx, span := m.tracer.Start(ctx, "query.mutate")
	defer span.End()
	data, err := m.fn(ctx, vars)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return data, err
	}
	span.SetStatus(codes.Ok, "mutated")
	return data, nil
}

// Reset returns to MutationIdle. The cache is not touched.
func (m *Mutation[TData, TVars]) Reset() {
	m.set(MutationIdle[TData]{})
}

// State returns the current state.
func (m *Mutation[TData, TVars]) State() MutationState[TData] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPending reports whether a mutation is running.
func (m *Mutation[TData, TVars]) IsPending() bool {
	return m.State().Status() == StatusLoading
}

// Subscribe registers fn for every subsequent state transition and returns a
// function that unregisters it.
func (m *Mutation[TData, TVars]) Subscribe(fn func(MutationState[TData])) func() {
	m.mu.Lock()
	id := m.subs.add(fn)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.subs.remove(id)
		m.mu.Unlock()
	}
}

func (m *Mutation[TData, TVars]) set(s MutationState[TData]) {
	m.mu.Lock()
	m.state = s
	t := transition[MutationState[TData]]{state: s, fns: m.subs.snapshot()}
	m.mu.Unlock()
	t.deliver(m.logger)
}
