package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sedorikku1949/MioEngine/internal/admin"
	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// clientTimeout bounds every admin call made by the CLI.
const clientTimeout = 5 * time.Second

type addressFunc func() (string, error)

func clientFor(addr addressFunc) (*admin.Client, error) {
	a, err := addr()
	if err != nil {
		return nil, err
	}
	return admin.NewClient(a), nil
}

func newStatusCommand(addr addressFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(addr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
			defer cancel()

			status, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), status)
		},
	}
}

func printStatus(w io.Writer, status admin.StatusResponse) error {
	snap := status.State
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%s\n", status.Version)
	fmt.Fprintf(tw, "started\t%s\n", humanize.Time(snap.ProcessStart))
	fmt.Fprintf(tw, "mode\t%s\n", snap.HandlerMode)
	fmt.Fprintf(tw, "prefix\t%s\n", snap.Prefix)
	fmt.Fprintf(tw, "flags\tmaintenance=%t dev=%t debug=%t\n", snap.Flags.Maintenance, snap.Flags.Dev, snap.Flags.Debug)
	if status.Archive != nil {
		fmt.Fprintf(tw, "archive\t%d sections, %d keys, %s\n",
			status.Archive.Sections, status.Archive.Keys, humanize.Bytes(uint64(status.Archive.Bytes)))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SHARD\tSTATE\tLATENCY\tWARNED\tPRESENCE\tMESSAGES\tREPLIES\tFAILURES")
	for _, info := range status.Shards {
		rec := snap.Latency[info.ID]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			info.ID,
			info.State,
			info.Latency.Round(time.Millisecond),
			rec.Warned,
			info.Online,
			humanize.Comma(int64(info.Stats.Messages)),
			humanize.Comma(int64(info.Stats.Replies)),
			humanize.Comma(int64(info.Stats.Failures)),
		)
	}
	return tw.Flush()
}

func newFlagsCommand(addr addressFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show or toggle the override flags of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(addr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
			defer cancel()

			var req admin.FlagsRequest
			for name, dst := range map[string]**bool{
				"maintenance": &req.Maintenance,
				"dev":         &req.Dev,
				"debug":       &req.Debug,
			} {
				if !cmd.Flags().Changed(name) {
					continue
				}
				v, err := cmd.Flags().GetBool(name)
				if err != nil {
					return err
				}
				*dst = &v
			}

			var flags state.Flags
			if req.Maintenance != nil || req.Dev != nil || req.Debug != nil {
				flags, err = c.SetFlags(ctx, req)
			} else {
				flags, err = c.Flags(ctx)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "maintenance=%t dev=%t debug=%t\n", flags.Maintenance, flags.Dev, flags.Debug)
			return err
		},
	}
	cmd.Flags().Bool("maintenance", false, "set the maintenance override")
	cmd.Flags().Bool("dev", false, "set the dev override")
	cmd.Flags().Bool("debug", false, "set the debug override")
	return cmd
}

func newArchiveCommand(addr addressFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read and write the archive of a running instance",
	}

	withClient := func(run func(ctx context.Context, c *admin.Client, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := clientFor(addr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
			defer cancel()
			return run(ctx, c, cmd, args)
		}
	}

	keys := &cobra.Command{
		Use:   "keys [section]",
		Short: "List sections, or the keys of one section",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(func(ctx context.Context, c *admin.Client, cmd *cobra.Command, args []string) error {
			var names []string
			var err error
			if len(args) == 0 {
				names, err = c.Sections(ctx)
			} else {
				names, err = c.Keys(ctx, args[0])
			}
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		}),
	}

	get := &cobra.Command{
		Use:   "get <section> <key>",
		Short: "Print one value",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, c *admin.Client, cmd *cobra.Command, args []string) error {
			value, err := c.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(value)
			return err
		}),
	}

	set := &cobra.Command{
		Use:   "set <section> <key> [value]",
		Short: "Store one value; without a value argument stdin is read",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withClient(func(ctx context.Context, c *admin.Client, cmd *cobra.Command, args []string) error {
			var value []byte
			if len(args) == 3 {
				value = []byte(args[2])
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				value = b
			}
			if err := c.Put(ctx, args[0], args[1], value); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s in %s/%s\n",
				humanize.Bytes(uint64(len(value))), args[0], strconv.Quote(args[1]))
			return err
		}),
	}

	del := &cobra.Command{
		Use:   "delete <section> <key>",
		Short: "Remove one value",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, c *admin.Client, cmd *cobra.Command, args []string) error {
			return c.Delete(ctx, args[0], args[1])
		}),
	}

	cmd.AddCommand(keys, get, set, del)
	return cmd
}
