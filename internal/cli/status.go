package cli

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/protocol"
	"github.com/roach88/onelane/internal/server"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Addr    string
	ID      string
	Timeout time.Duration
}

// StatusResult is the bridge state printed by the status command.
type StatusResult struct {
	CurrentDirection bridge.Direction     `json:"current_direction"`
	Timestamp        string               `json:"timestamp"`
	Data             *protocol.StatusData `json:"data"`
}

func (r StatusResult) String() string {
	var buf strings.Builder
	d := r.Data
	fmt.Fprintf(&buf, "Direction:     %s\n", r.CurrentDirection)
	fmt.Fprintf(&buf, "On bridge:     %d %s\n", len(d.CarsOnBridge), joinIDs(d.CarsOnBridge))
	fmt.Fprintf(&buf, "Waiting left:  %d %s\n", d.LeftTrafficSize, joinIDs(d.LeftTraffic))
	fmt.Fprintf(&buf, "Waiting right: %d %s\n", d.RightTrafficSize, joinIDs(d.RightTraffic))
	expected := string(d.ExpectedCar)
	if expected == "" {
		expected = "-"
	}
	fmt.Fprintf(&buf, "Reserved for:  %s", expected)
	return buf.String()
}

func joinIDs(ids []bridge.ActorID) string {
	if len(ids) == 0 {
		return ""
	}
	return "[" + idList(ids) + "]"
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current bridge state",
		Long: `Query a running controller once with UPDATE_BRIDGE_STATUS and print
the lane direction, the vehicles on the bridge and both queues.

The query binds a throwaway id on its connection; pass --id to choose it.

Examples:
  onelane status
  onelane status --addr 10.0.0.5:7777 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "bridge controller address (default from config)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "id to query as (default: a fresh observer id)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "connect and response timeout")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Vehicle.Addr
	}
	id := opts.ID
	if id == "" {
		id = "observer-" + server.UUIDv7Generator{}.Generate()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(parentCtx, opts.Timeout)
	defer cancel()

	resp, err := queryStatus(ctx, addr, bridge.ActorID(id))
	if err != nil {
		return WrapExitError(ExitCommandError, "status query failed", err)
	}
	if resp.Data == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("server answered %s/%s: %s", resp.Status, resp.Reason, resp.Message))
	}

	return opts.formatter(cmd).Success(StatusResult{
		CurrentDirection: resp.CurrentDirection,
		Timestamp:        resp.Timestamp,
		Data:             resp.Data,
	})
}

// queryStatus sends one UPDATE_BRIDGE_STATUS and returns the first
// non-invitation reply.
func queryStatus(ctx context.Context, addr string, id bridge.ActorID) (protocol.Response, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Response{}, err
	}
	defer nc.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	req := protocol.NewRequest(protocol.KindUpdateStatus, id, bridge.Left, time.Now())
	if err := protocol.NewEncoder(nc).Encode(req); err != nil {
		return protocol.Response{}, fmt.Errorf("send: %w", err)
	}

	dec := protocol.NewDecoder(nc, protocol.DefaultMaxReplySize)
	for {
		frame, err := dec.Next()
		if err != nil {
			return protocol.Response{}, fmt.Errorf("read: %w", err)
		}
		resp, err := protocol.DecodeResponse(frame)
		if err != nil {
			return protocol.Response{}, err
		}
		if resp.IsInvitation() {
			continue
		}
		return resp, nil
	}
}
