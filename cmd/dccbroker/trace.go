package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/trace"
)

type dumpOptions struct {
	remote    string
	direction string
	msgType   string
	since     time.Duration
}

func newTraceCmd() *cobra.Command {
	var opts dumpOptions

	dump := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the packets recorded in a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args[0], opts, cmd.OutOrStdout())
		},
	}
	dump.Flags().StringVar(&opts.remote, "remote", "", "only packets to or from this ip:port")
	dump.Flags().StringVar(&opts.direction, "direction", "", "only \"in\" or \"out\" packets")
	dump.Flags().StringVar(&opts.msgType, "type", "", "only packets of this message type, e.g. HELLO")
	dump.Flags().DurationVar(&opts.since, "since", 0, "only packets recorded within this long before now")

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect packet trace files",
	}
	cmd.AddCommand(dump)
	return cmd
}

func (o dumpOptions) filter(now time.Time) (trace.Filter, error) {
	f := trace.Filter{Remote: o.remote}

	switch o.direction {
	case "":
	case "in":
		d := trace.DirectionIn
		f.Direction = &d
	case "out":
		d := trace.DirectionOut
		f.Direction = &d
	default:
		return f, fmt.Errorf("invalid direction %q: want in or out", o.direction)
	}

	if o.msgType != "" {
		mt, err := packet.ParseMsgType(o.msgType)
		if err != nil {
			return f, err
		}
		f.Type = &mt
	}

	if o.since > 0 {
		f.Since = now.Add(-o.since)
	}
	return f, nil
}

func runDump(path string, opts dumpOptions, out io.Writer) error {
	filter, err := opts.filter(time.Now())
	if err != nil {
		return err
	}

	r, err := trace.OpenFiltered(path, filter)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer r.Close()

	n, err := trace.Dump(out, r)
	if err != nil {
		return fmt.Errorf("reading trace after %d records: %w", n, err)
	}
	fmt.Fprintf(out, "%d packets\n", n)
	return nil
}
