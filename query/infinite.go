package query

import (
	"context"

	"github.com/agentuity/go-query/cache"
)

// PageFetchFunc loads the page identified by param.
type PageFetchFunc[TPage, TParam any] func(ctx context.Context, param TParam) (TPage, error)

// InfiniteData is the value cached by an InfiniteRunner: every loaded page
// in order, together with the parameter each page was fetched with.
type InfiniteData[TPage, TParam any] struct {
	Pages           []TPage
	PageParams      []TParam
	HasNextPage     bool
	HasPreviousPage bool
}

// InfiniteOptions configures an InfiniteRunner.
type InfiniteOptions[TPage, TParam any] struct {
	Options[InfiniteData[TPage, TParam]]

	InitialPageParam TParam
	// GetNextPageParam returns the parameter of the page after last, or
	// false when there is none.
	GetNextPageParam func(last TPage, all []TPage) (TParam, bool)
	// GetPreviousPageParam returns the parameter of the page before first,
	// or false when there is none. Nil disables backward paging.
	GetPreviousPageParam func(first TPage, all []TPage) (TParam, bool)
}

// DefaultInfiniteOptions returns DefaultConfig with the given paging
// functions.
func DefaultInfiniteOptions[TPage, TParam any](initial TParam, next func(last TPage, all []TPage) (TParam, bool)) InfiniteOptions[TPage, TParam] {
	return InfiniteOptions[TPage, TParam]{
		Options:          DefaultOptions[InfiniteData[TPage, TParam]](),
		InitialPageParam: initial,
		GetNextPageParam: next,
	}
}

// InfiniteRunner is a Runner whose value is a list of pages stored under one
// key. Refetching restarts from InitialPageParam and walks forward as many
// pages as were loaded.
type InfiniteRunner[TPage, TParam any] struct {
	*Runner[InfiniteData[TPage, TParam]]

	fetchPage PageFetchFunc[TPage, TParam]
	opts      InfiniteOptions[TPage, TParam]
}

// NewInfiniteRunner returns an idle infinite runner for key.
func NewInfiniteRunner[TPage, TParam any](store *cache.Store, key string, fetch PageFetchFunc[TPage, TParam], opts InfiniteOptions[TPage, TParam]) *InfiniteRunner[TPage, TParam] {
	ir := &InfiniteRunner[TPage, TParam]{fetchPage: fetch, opts: opts}
	ir.Runner = NewRunner(store, key, ir.refetchPages, opts.Options)
	return ir
}

// Data returns the loaded pages, if any.
func (ir *InfiniteRunner[TPage, TParam]) Data() (InfiniteData[TPage, TParam], bool) {
	return DataOf[InfiniteData[TPage, TParam]](ir.State())
}

// HasNextPage reports whether FetchNextPage would fetch.
func (ir *InfiniteRunner[TPage, TParam]) HasNextPage() bool {
	data, ok := ir.Data()
	return ok && data.HasNextPage
}

// HasPreviousPage reports whether FetchPreviousPage would fetch.
func (ir *InfiniteRunner[TPage, TParam]) HasPreviousPage() bool {
	data, ok := ir.Data()
	return ok && data.HasPreviousPage
}

// FetchNextPage appends the next page. It does nothing when there is no next
// page or a fetch is already in flight.
func (ir *InfiniteRunner[TPage, TParam]) FetchNextPage(ctx context.Context) State[InfiniteData[TPage, TParam]] {
	current, ok := ir.Data()
	if !ok || !current.HasNextPage || len(current.Pages) == 0 || ir.opts.GetNextPageParam == nil {
		return ir.State()
	}
	param, ok := ir.opts.GetNextPageParam(current.Pages[len(current.Pages)-1], current.Pages)
	if !ok {
		return ir.State()
	}
	ir.execute(ctx, func(ctx context.Context) (InfiniteData[TPage, TParam], error) {
		page, err := ir.fetchPage(ctx, param)
		if err != nil {
			return current, err
		}
		next := InfiniteData[TPage, TParam]{
			Pages:      append(append([]TPage(nil), current.Pages...), page),
			PageParams: append(append([]TParam(nil), current.PageParams...), param),
		}
		ir.flags(&next)
		return next, nil
	}, true, true)
	return ir.State()
}

// FetchPreviousPage prepends the page before the first one. It does nothing
// when there is no previous page or a fetch is already in flight.
func (ir *InfiniteRunner[TPage, TParam]) FetchPreviousPage(ctx context.Context) State[InfiniteData[TPage, TParam]] {
	current, ok := ir.Data()
	if !ok || !current.HasPreviousPage || len(current.Pages) == 0 || ir.opts.GetPreviousPageParam == nil {
		return ir.State()
	}
	param, ok := ir.opts.GetPreviousPageParam(current.Pages[0], current.Pages)
	if !ok {
		return ir.State()
	}
	ir.execute(ctx, func(ctx context.Context) (InfiniteData[TPage, TParam], error) {
		page, err := ir.fetchPage(ctx, param)
		if err != nil {
			return current, err
		}
		next := InfiniteData[TPage, TParam]{
			Pages:      append([]TPage{page}, current.Pages...),
			PageParams: append([]TParam{param}, current.PageParams...),
		}
		ir.flags(&next)
		return next, nil
	}, true, true)
	return ir.State()
}

// refetchPages is the fetch function of the embedded runner. It reloads
// from InitialPageParam as many pages as are currently loaded, at least one,
// and stops early when the chain ends.
func (ir *InfiniteRunner[TPage, TParam]) refetchPages(ctx context.Context) (InfiniteData[TPage, TParam], error) {
	want := 1
	if current, ok := ir.loaded(); ok && len(current.Pages) > want {
		want = len(current.Pages)
	}

	var data InfiniteData[TPage, TParam]
	param := ir.opts.InitialPageParam
	for i := 0; i < want; i++ {
		page, err := ir.fetchPage(ctx, param)
		if err != nil {
			return InfiniteData[TPage, TParam]{}, err
		}
		data.Pages = append(data.Pages, page)
		data.PageParams = append(data.PageParams, param)
		if ir.opts.GetNextPageParam == nil {
			break
		}
		next, ok := ir.opts.GetNextPageParam(page, data.Pages)
		if !ok {
			break
		}
		param = next
	}
	ir.flags(&data)
	return data, nil
}

// loaded returns the pages shown by the runner, falling back to the store
// while a refetch replaced the state with Loading.
func (ir *InfiniteRunner[TPage, TParam]) loaded() (InfiniteData[TPage, TParam], bool) {
	if data, ok := ir.Data(); ok {
		return data, true
	}
	return cache.GetData[InfiniteData[TPage, TParam]](ir.store, ir.key)
}

func (ir *InfiniteRunner[TPage, TParam]) flags(data *InfiniteData[TPage, TParam]) {
	data.HasNextPage, data.HasPreviousPage = false, false
	if len(data.Pages) == 0 {
		return
	}
	if ir.opts.GetNextPageParam != nil {
		_, data.HasNextPage = ir.opts.GetNextPageParam(data.Pages[len(data.Pages)-1], data.Pages)
	}
	if ir.opts.GetPreviousPageParam != nil {
		_, data.HasPreviousPage = ir.opts.GetPreviousPageParam(data.Pages[0], data.Pages)
	}
}
