package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/config"
	"github.com/roach88/onelane/internal/journal"
	"github.com/roach88/onelane/internal/server"
	"github.com/roach88/onelane/internal/statusfeed"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Host        string
	Port        int
	IdleTimeout time.Duration
	Journal     string
	StatusAddr  string

	// Ready, if set, is called with the bound address once the server
	// accepts connections (for testing with port 0).
	Ready func(net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(rootOpts, nil)
}

func newServeCommand(rootOpts *RootOptions, ready func(net.Addr)) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts, Ready: ready}
	def := config.Default().Server

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge controller",
		Long: `Run the bridge controller until interrupted.

Vehicles connect over TCP and exchange newline-delimited JSON frames.
With --journal every bridge event is appended to a SQLite audit log;
with --status-addr a read-only websocket feed is served at /status.

Examples:
  onelane serve
  onelane serve --port 9000 --journal ./onelane.db
  onelane serve --status-addr 127.0.0.1:8080 --log-format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", def.Host, "address to listen on")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", def.Port, "TCP port to listen on")
	cmd.Flags().DurationVar(&opts.IdleTimeout, "idle-timeout", 0, "close connections idle this long (0 disables)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite event journal")
	cmd.Flags().StringVar(&opts.StatusAddr, "status-addr", "", "serve the websocket status feed on this address")

	return cmd
}

// serverSettings merges changed flags over the loaded configuration.
func (opts *ServeOptions) serverSettings(cmd *cobra.Command) config.Server {
	s := opts.Config.Server
	flags := cmd.Flags()
	if flags.Changed("host") {
		s.Host = opts.Host
	}
	if flags.Changed("port") {
		s.Port = opts.Port
	}
	if flags.Changed("idle-timeout") {
		s.IdleTimeout = config.Duration(opts.IdleTimeout)
	}
	if flags.Changed("journal") {
		s.Journal = opts.Journal
	}
	if flags.Changed("status-addr") {
		s.StatusAddr = opts.StatusAddr
	}
	return s
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.logger()
	settings := opts.serverSettings(cmd)
	cfg := opts.Config
	cfg.Server = settings
	srvCfg := cfg.ServerConfig()

	if settings.Port < 0 || settings.Port > 65535 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid port %d", settings.Port))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.WithLogger(logger))
	g, gctx := errgroup.WithContext(ctx)

	if settings.Journal != "" {
		j, err := journal.Open(settings.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		runID := server.UUIDv7Generator{}.Generate()
		if err := j.StartRun(ctx, runID, time.Now()); err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal run", err)
		}
		rec := journal.NewRecorder(j, runID, journal.WithRecorderLogger(logger))
		b.AddObserver(rec)
		// The recorder outlives the server group so the purges issued
		// while connections close are still written. It is closed once
		// every other goroutine has returned, before the journal.
		recDone := make(chan struct{})
		go func() {
			defer close(recDone)
			_ = rec.Run(context.WithoutCancel(ctx))
		}()
		defer func() {
			rec.Close()
			<-recDone
		}()
		logger.Info("journal enabled", "path", settings.Journal, "run", runID)
	}

	if settings.StatusAddr != "" {
		hub := statusfeed.NewHub(b,
			statusfeed.WithLogger(logger),
			statusfeed.WithWriteTimeout(srvCfg.WriteTimeout),
		)
		b.AddObserver(hub)
		g.Go(func() error {
			if err := hub.ListenAndServe(gctx, settings.StatusAddr); err != nil {
				return fmt.Errorf("status feed: %w", err)
			}
			return nil
		})
	}

	ln, err := net.Listen("tcp", srvCfg.Addr())
	if err != nil {
		stop()
		_ = g.Wait()
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := server.New(srvCfg, b, server.WithLogger(logger))
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Bridge controller listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
