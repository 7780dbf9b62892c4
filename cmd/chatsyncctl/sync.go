package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect the delta sync loop",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync watermark and last error",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.GetSyncStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			watermark := "none"
			if resp.Watermark != nil {
				watermark = formatTime(*resp.Watermark)
			}
			fmt.Printf("State:     %s\n", resp.State)
			fmt.Printf("Watermark: %s\n", watermark)
			fmt.Printf("Updating:  %v\n", resp.Updating)
			if resp.Status != "" {
				fmt.Printf("Status:    %s\n", resp.Status)
			}
			if resp.LastError != "" {
				fmt.Printf("Error:     %s\n", resp.LastError)
			}
			return nil
		})
	},
}

var watchPrefixes []string

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream sync and session events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(cmd, func(ctx context.Context, c *api.Client) error {
			stream, err := c.WatchEvents(ctx, &api.WatchEventsRequest{Prefixes: watchPrefixes})
			if err != nil {
				return err
			}
			for {
				evt, err := stream.Recv()
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(evt)
					continue
				}
				fmt.Printf("%s  %-24s %s\n", formatTime(evt.OccurredAt), evt.Kind, evt.Payload)
			}
		})
	},
}

func init() {
	syncWatchCmd.Flags().StringSliceVar(&watchPrefixes, "kind", nil, "event kind prefixes to stream (default sync. and session.)")
	syncCmd.AddCommand(syncStatusCmd, syncWatchCmd)
}
