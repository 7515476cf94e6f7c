package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentuity/go-query/cache"
	"github.com/agentuity/go-query/lifecycle"
	"github.com/agentuity/go-query/query"
	"github.com/agentuity/go-query/resilience"
	"github.com/agentuity/go-query/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval     time.Duration
	StaleTime    time.Duration
	Retry        int
	KeepPrevious bool
	MetricsAddr  string
	Timeout      time.Duration
	OTLPEndpoint string
	OTLPToken    string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Poll a JSON endpoint and print every state transition",
		Long: `Poll a JSON endpoint through a query runner and print every state
transition until interrupted.

On unix, SIGUSR1 moves the watcher to the background and SIGUSR2 brings it
back, which pauses polling when pause_refetch_in_background is set.

Example:
  query-cli watch https://api.example.com/status --interval 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Second, "refetch interval")
	cmd.Flags().DurationVar(&opts.StaleTime, "stale", 0, "stale time (default from config)")
	cmd.Flags().IntVar(&opts.Retry, "retry", 0, "retries per fetch (default from config)")
	cmd.Flags().BoolVar(&opts.KeepPrevious, "keep-previous", false, "keep showing the previous value while refetching")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	cmd.Flags().StringVar(&opts.OTLPEndpoint, "otlp-endpoint", "", "export fetch spans to this OTLP/HTTP collector")
	cmd.Flags().StringVar(&opts.OTLPToken, "otlp-token", "", "bearer token for the OTLP collector")

	return cmd
}

func (o *WatchOptions) config(cmd *cobra.Command) (query.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("interval") || cfg.RefetchInterval == 0 {
		cfg.RefetchInterval = o.Interval
	}
	if flags.Changed("stale") {
		cfg.StaleTime = o.StaleTime
	}
	if flags.Changed("retry") {
		cfg.Retry = o.Retry
	}
	if flags.Changed("keep-previous") {
		cfg.KeepPreviousData = o.KeepPrevious
	}
	return cfg, cfg.Validate()
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, url string) error {
	ctx := cmd.Context()
	cfg, err := opts.config(cmd)
	if err != nil {
		return err
	}
	log := opts.logger()

	if opts.OTLPEndpoint != "" {
		_, shutdown, err := telemetry.New(ctx, opts.OTLPEndpoint, opts.OTLPToken, "query-cli", log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	reg := prometheus.NewRegistry()
	metrics, err := cache.NewPrometheusMetrics(reg, "goquery")
	if err != nil {
		return err
	}
	store := cache.NewStore(cache.WithLogger(log), cache.WithMetrics(metrics))
	defer store.Close()
	if err := reg.Register(cache.SizeGauge(store, "goquery")); err != nil {
		return errors.Wrap(err, "register size gauge")
	}
	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	signals := lifecycle.NewBroadcaster(log)
	notifyLifecycle(ctx, signals)

	client := query.NewClient(store,
		query.WithConfig(cfg),
		query.WithLifecycle(signals),
		query.WithLogger(log),
		query.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())),
	)
	defer client.Close()

	httpClient := &http.Client{Timeout: opts.Timeout}
	runner := query.NewRunner(store, cache.Key("watch", url), fetchJSON(httpClient, url), query.ClientOptions[any](client))
	defer runner.Dispose()

	out := cmd.OutOrStdout()
	runner.Subscribe(func(s query.State[any]) { printState(out, s) })
	runner.Mount(ctx)

	<-ctx.Done()
	stats := client.Stats()
	fmt.Fprintf(out, "hits=%d misses=%d evictions=%d expirations=%d hit_rate=%.2f\n",
		stats.Hits, stats.Misses, stats.Evictions, stats.Expirations, stats.HitRate())
	return nil
}

// fetchJSON returns a fetch function decoding the body of url as JSON.
func fetchJSON(client *http.Client, url string) query.FetchFunc[any] {
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("Accept", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "GET %s", url)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return nil, errors.Newf("GET %s: unexpected status %s", url, resp.Status)
		}
		var body any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, errors.Wrap(err, "decode response")
		}
		return body, nil
	}
}

func printState(w io.Writer, s query.State[any]) {
	ts := time.Now().Format(time.TimeOnly)
	switch v := s.(type) {
	case query.Success[any]:
		fmt.Fprintf(w, "%s %-10s %s\n", ts, v.Status(), summarize(v.Data))
	case query.Refetching[any]:
		fmt.Fprintf(w, "%s %-10s showing %s\n", ts, v.Status(), summarize(v.PreviousData))
	case query.Error[any]:
		fmt.Fprintf(w, "%s %-10s %v\n", ts, v.Status(), v.Err)
	default:
		fmt.Fprintf(w, "%s %s\n", ts, s.Status())
	}
}

func summarize(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const max = 120
	if len(buf) > max {
		return string(buf[:max]) + "..."
	}
	return string(buf)
}
