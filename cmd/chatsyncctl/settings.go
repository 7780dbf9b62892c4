package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change synchronized settings",
}

func printSettings(resp *api.GetSettingsResponse) {
	if jsonFlag {
		outputJSON(resp)
		return
	}
	if resp.ResetToDefaults {
		fmt.Println("Server unreachable; settings were reset to defaults.")
	}
	for _, s := range resp.Settings {
		fmt.Printf("%-12s %-8s %-8s v%d (synced %d, server %d)\n",
			s.Key, s.Value, s.SyncStatus, s.LocalVersion, s.SyncedVersion, s.ServerVersion)
	}
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show settings with their sync state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.GetSettings(ctx)
			if err != nil {
				return err
			}
			printSettings(resp)
			return nil
		})
	},
}

var settingsLanguageCmd = &cobra.Command{
	Use:       "language <English|German>",
	Short:     "Change the interface language",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"English", "German"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ChangeLanguage(ctx, args[0])
			if err != nil {
				return err
			}
			printSettings(resp)
			return nil
		})
	},
}

var settingsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending settings now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.SyncSettings(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Settings sync: %s\n", resp.Outcome)
			return nil
		})
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsLanguageCmd, settingsSyncCmd)
}
