package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/onelane/internal/client"
	"github.com/roach88/onelane/internal/config"
)

// DriveOptions holds flags for the drive command.
type DriveOptions struct {
	*RootOptions
	Addr            string
	ID              string
	Direction       string
	MinCrossing     time.Duration
	MaxCrossing     time.Duration
	MinDelay        time.Duration
	MaxDelay        time.Duration
	Crossings       int
	MaxRetries      int
	ResponseTimeout time.Duration
	RetryDelay      time.Duration
	Seed            uint64
}

// DriveResult is the summary printed when a vehicle stops.
type DriveResult struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Crossings int    `json:"crossings"`
	State     string `json:"state"`
}

func (r DriveResult) String() string {
	return fmt.Sprintf("%s completed %d crossing(s), next heading %s", r.ID, r.Crossings, r.Direction)
}

// NewDriveCommand creates the drive command.
func NewDriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DriveOptions{RootOptions: rootOpts}
	def := config.Default().Vehicle

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Run one vehicle against a bridge controller",
		Long: `Run one vehicle that repeatedly asks for the lane, crosses, and
reports completion.

Crossing time and the pause between crossings are drawn uniformly from
[--min-crossing, --max-crossing] and [--min-delay, --max-delay]. The vehicle
reconnects with exponential backoff after connection loss.

Exit codes:
  0 - Finished the requested crossings or interrupted
  1 - Rejected by the server or out of reconnect attempts
  2 - Invalid flags

Examples:
  onelane drive --id car-1 --direction left
  onelane drive --id car-2 --direction RIGHT --crossings 3 --max-crossing 2s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrive(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", def.Addr, "bridge controller address")
	f.StringVar(&opts.ID, "id", "", "vehicle id (required unless set in config)")
	f.StringVarP(&opts.Direction, "direction", "d", def.Direction, "travel direction (left|right)")
	f.DurationVar(&opts.MinCrossing, "min-crossing", time.Duration(def.MinCrossing), "minimum time on the bridge")
	f.DurationVar(&opts.MaxCrossing, "max-crossing", time.Duration(def.MaxCrossing), "maximum time on the bridge")
	f.DurationVar(&opts.MinDelay, "min-delay", time.Duration(def.MinDelay), "minimum pause between crossings")
	f.DurationVar(&opts.MaxDelay, "max-delay", time.Duration(def.MaxDelay), "maximum pause between crossings")
	f.IntVarP(&opts.Crossings, "crossings", "n", 0, "stop after this many crossings (0 runs until interrupted)")
	f.IntVar(&opts.MaxRetries, "max-retries", def.MaxRetries, "reconnect attempts before giving up")
	f.DurationVar(&opts.ResponseTimeout, "response-timeout", time.Duration(def.ResponseTimeout), "wait this long for any server message")
	f.DurationVar(&opts.RetryDelay, "retry-delay", time.Duration(def.RetryDelay), "pause before re-requesting after being queued")
	f.Uint64Var(&opts.Seed, "seed", 0, "seed for crossing and delay times (0 picks a random seed)")

	return cmd
}

// vehicleSettings merges changed flags over the loaded configuration.
func (opts *DriveOptions) vehicleSettings(cmd *cobra.Command) config.Vehicle {
	v := opts.Config.Vehicle
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("addr", func() { v.Addr = opts.Addr })
	set("id", func() { v.ID = opts.ID })
	set("direction", func() { v.Direction = opts.Direction })
	set("min-crossing", func() { v.MinCrossing = config.Duration(opts.MinCrossing) })
	set("max-crossing", func() { v.MaxCrossing = config.Duration(opts.MaxCrossing) })
	set("min-delay", func() { v.MinDelay = config.Duration(opts.MinDelay) })
	set("max-delay", func() { v.MaxDelay = config.Duration(opts.MaxDelay) })
	set("crossings", func() { v.Crossings = opts.Crossings })
	set("max-retries", func() { v.MaxRetries = opts.MaxRetries })
	set("response-timeout", func() { v.ResponseTimeout = config.Duration(opts.ResponseTimeout) })
	set("retry-delay", func() { v.RetryDelay = config.Duration(opts.RetryDelay) })
	return v
}

func runDrive(opts *DriveOptions, cmd *cobra.Command) error {
	logger := opts.logger()
	cfg := opts.Config
	cfg.Vehicle = opts.vehicleSettings(cmd)

	vcfg, err := cfg.VehicleConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid vehicle settings", err)
	}
	copts := []client.Option{client.WithLogger(logger)}
	if opts.Seed != 0 {
		copts = append(copts, client.WithSeed(opts.Seed))
	}
	vehicle, err := client.New(vcfg, copts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid vehicle settings", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := vehicle.Run(ctx)

	result := DriveResult{
		ID:        string(vcfg.ID),
		Direction: string(vehicle.Direction()),
		Crossings: vehicle.Crossings(),
		State:     vehicle.State().String(),
	}
	out := opts.formatter(cmd)

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
		return out.Success(result)
	case errors.Is(runErr, client.ErrRejected):
		_ = out.Error("E101", runErr.Error(), result)
		return WrapExitError(ExitFailure, "vehicle rejected", runErr)
	case errors.Is(runErr, client.ErrRetriesExhausted):
		_ = out.Error("E102", runErr.Error(), result)
		return WrapExitError(ExitFailure, "vehicle gave up", runErr)
	default:
		_ = out.Error("E100", runErr.Error(), result)
		return WrapExitError(ExitFailure, "vehicle failed", runErr)
	}
}
