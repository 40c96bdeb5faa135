package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/gateway"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/metrics"
	"github.com/gqlgate/gqlgate/pkg/ratelimit"
	"github.com/gqlgate/gqlgate/pkg/schema"
	gqltls "github.com/gqlgate/gqlgate/pkg/tls"
)

// Serve defaults.
const (
	DefaultAddr      = ":4000"
	DefaultPath      = "/graphql"
	DefaultEnvPrefix = "GQLGATE_"
	HealthPath       = "/healthz"
	MetricsPath      = "/metrics"

	// shutdownTimeout is the maximum time to wait for graceful shutdown.
	shutdownTimeout = 30 * time.Second
)

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

// serveFlags holds the parsed command-line flags of the serve command.
type serveFlags struct {
	addr           string
	path           string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxConnections int
	envPrefix      string
	metrics        bool
	rateLimit      float64
	rateBurst      int
	trustedProxies []string

	tlsCert string
	tlsKey  string
	tlsAuto bool

	logLevel   string
	logFormat  string
	logPushURL string
	logLabels  string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured GraphQL API over HTTP",
	Long: `Load the configuration, open its backends and serve GraphQL queries.

Queries are accepted as POST (application/json or application/graphql) and GET
on the GraphQL path. A health check answers on /healthz and Prometheus metrics
on /metrics. Environment variables
starting with the --env-prefix are available to response templates as env,
with the prefix removed.`,
	Example: `  # Serve ./gqlgate.yaml on :4000
  gqlgate serve

  # Custom configuration, address and JSON logs
  gqlgate serve -c cellar.yaml --addr 127.0.0.1:8080 --log-format json

  # Limit each client to 20 requests per second
  gqlgate serve --rate-limit 20 --trusted-proxies 10.0.0.0/8

  # Also push logs to Loki
  gqlgate serve --log-push-url http://localhost:3100/loki/api/v1/push --log-labels env=dev`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), &serveFlagVals, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	serveCmd.Flags().StringVar(&f.addr, "addr", DefaultAddr, "HTTP listen address")
	serveCmd.Flags().StringVar(&f.path, "path", DefaultPath, "GraphQL endpoint path")
	serveCmd.Flags().DurationVar(&f.readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&f.writeTimeout, "write-timeout", 30*time.Second, "HTTP write timeout")
	serveCmd.Flags().IntVar(&f.maxConnections, "max-connections", 0, "Maximum concurrent HTTP connections (0 = unlimited)")
	serveCmd.Flags().StringVar(&f.envPrefix, "env-prefix", DefaultEnvPrefix, "Prefix of environment variables exposed to templates")
	serveCmd.Flags().BoolVar(&f.metrics, "metrics", true, "Serve Prometheus metrics on "+MetricsPath)

	// Rate limiting flags
	serveCmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "Requests per second per client (0 = disabled)")
	serveCmd.Flags().IntVar(&f.rateBurst, "rate-burst", 0, "Rate limit burst size (default twice the rate)")
	serveCmd.Flags().StringSliceVar(&f.trustedProxies, "trusted-proxies", nil, "Proxies whose X-Forwarded-For is trusted (CIDR or address)")

	// TLS flags
	serveCmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "Path to TLS private key file")
	serveCmd.Flags().BoolVar(&f.tlsAuto, "tls-auto", false, "Serve HTTPS with a generated self-signed certificate")

	// Logging flags
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	serveCmd.Flags().StringVar(&f.logPushURL, "log-push-url", "", "Loki push endpoint for log aggregation")
	serveCmd.Flags().StringVar(&f.logLabels, "log-labels", "", "Pushed log stream labels as key=value pairs (comma-separated)")
}

func validateServeFlags(f *serveFlags) error {
	if !strings.HasPrefix(f.path, "/") {
		return fmt.Errorf("--path must start with /, got %q", f.path)
	}
	if f.path == HealthPath || (f.metrics && f.path == MetricsPath) {
		return fmt.Errorf("--path cannot be %s", f.path)
	}
	if f.maxConnections < 0 {
		return fmt.Errorf("--max-connections cannot be negative")
	}
	if f.rateLimit < 0 || f.rateBurst < 0 {
		return fmt.Errorf("--rate-limit and --rate-burst cannot be negative")
	}
	if f.logLabels != "" && f.logPushURL == "" {
		return fmt.Errorf("--log-labels requires --log-push-url")
	}
	return nil
}

func loggingConfig(f *serveFlags, w io.Writer) logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(f.logLevel),
		Format:     logging.ParseFormat(f.logFormat),
		Output:     w,
		PushURL:    f.logPushURL,
		PushLabels: parseLabels(f.logLabels),
	}
}

// gatewayServer is a loaded configuration ready to serve.
type gatewayServer struct {
	cfg     *schema.Configuration
	handler http.Handler
	close   func() error
}

// newGatewayServer loads the configuration at path and wires backends,
// executor, handler and the optional metrics and rate limiting into one mux.
func newGatewayServer(ctx context.Context, path string, f *serveFlags, environ []string, logger *slog.Logger) (*gatewayServer, error) {
	cfg, err := schema.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var (
		m        *metrics.Metrics
		wrappers []backend.Wrapper
		opts     = []gateway.HandlerOption{
			gateway.WithLogger(logging.Component(logger, "handler")),
			gateway.WithTemplateEnv(templateEnv(f.envPrefix, environ)),
		}
	)
	if f.metrics {
		m = metrics.New()
		m.SetConfig(cfg)
		wrappers = append(wrappers, m.WrapFetcher)
		opts = append(opts, gateway.WithResponseObserver(m.ObserveResponse))
	}

	router := convert.DefaultRouter()
	backends, err := gateway.OpenBackends(ctx, cfg, router, logging.Component(logger, "backend"), wrappers...)
	if err != nil {
		return nil, err
	}
	exec, err := gateway.NewExecutor(cfg, backends, router, logging.Component(logger, "executor"))
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	var h http.Handler = gateway.NewHandler(exec, cfg.Templates(), opts...)
	var limiter *ratelimit.Limiter
	if f.rateLimit > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			Rate:           f.rateLimit,
			Burst:          f.rateBurst,
			TrustedProxies: f.trustedProxies,
		})
		h = ratelimit.Middleware(limiter)(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	if m != nil {
		h = m.Middleware(h)
		mux.Handle(MetricsPath, m.Handler())
	}
	mux.Handle(f.path, h)

	return &gatewayServer{
		cfg:     cfg,
		handler: mux,
		close: func() error {
			if limiter != nil {
				limiter.Stop()
			}
			return backends.Close()
		},
	}, nil
}

func runServe(ctx context.Context, f *serveFlags, stdout io.Writer) error {
	if err := validateServeFlags(f); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, closeLogs := logging.Open(loggingConfig(f, os.Stderr))
	defer func() {
		if err := closeLogs(); err != nil {
			fmt.Fprintln(os.Stderr, "flush logs:", err)
		}
	}()

	path := resolveConfigPath(configFile)
	gs, err := newGatewayServer(ctx, path, f, os.Environ(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = gs.close() }()

	tlsCfg, err := gqltls.ServerConfig(gqltls.Options{CertFile: f.tlsCert, KeyFile: f.tlsKey, Auto: f.tlsAuto})
	if err != nil {
		return err
	}
	ln, err := listen(f.addr, f.maxConnections)
	if err != nil {
		return err
	}
	scheme := "http"
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
		scheme = "https"
	}

	srv := &http.Server{
		Handler:           gs.handler,
		ReadTimeout:       f.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      f.writeTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	fmt.Fprintf(stdout, "GraphQL endpoint: %s://%s%s\n", scheme, ln.Addr(), f.path)
	logger.Info("gqlgate started",
		"addr", ln.Addr().String(),
		"tls", tlsCfg != nil,
		"path", f.path,
		"config", path,
		"types", len(gs.cfg.TypeNames()),
		"backends", len(gs.cfg.BackendNames()),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func listen(addr string, maxConnections int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("address %s is already in use", addr)
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if maxConnections > 0 {
		ln = netutil.LimitListener(ln, maxConnections)
	}
	return ln, nil
}

// templateEnv returns the variables of environ that start with prefix,
// keyed by the rest of their name.
func templateEnv(prefix string, environ []string) map[string]string {
	env := make(map[string]string)
	if prefix == "" {
		return env
	}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || name == EnvConfig {
			continue
		}
		if key := strings.TrimPrefix(name, prefix); key != "" {
			env[key] = value
		}
	}
	return env
}

// parseLabels parses comma-separated key=value pairs.
func parseLabels(labelsStr string) map[string]string {
	if labelsStr == "" {
		return nil
	}

	labels := make(map[string]string)
	for _, pair := range strings.Split(labelsStr, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok {
			labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return labels
}
