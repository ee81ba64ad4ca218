package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf2cbz/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change stored settings",
	Long: fmt.Sprintf(`Stored settings are applied before every run, after the config file and
before command-line flags. Known keys: %v`, settings.Keys()),
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireStore()
		if err != nil {
			return err
		}
		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			values := make(map[string]string, len(list))
			for _, st := range list {
				values[st.Key] = st.Value
			}
			app.ui.JSON(values)
			return nil
		}
		if len(list) == 0 {
			app.ui.Info("No settings stored in %s", app.cfg.Settings.Path)
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, st := range list {
			rows = append(rows, []string{st.Key, st.Value, st.UpdatedAt.Local().Format(time.DateTime)})
		}
		app.ui.Table([]string{"KEY", "VALUE", "UPDATED"}, rows)
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one stored setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireStore()
		if err != nil {
			return err
		}
		value, ok, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not set", args[0])
		}
		if jsonOutput {
			app.ui.JSON(map[string]string{args[0]: value})
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireStore()
		if err != nil {
			return err
		}
		if err := store.Set(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		app.ui.Success("%s saved", args[0])
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireStore()
		if err != nil {
			return err
		}
		rows, err := store.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			app.ui.JSON(rows)
			return nil
		}
		table := make([][]string, 0, len(rows))
		for _, c := range rows {
			status := string(c.Status)
			if c.Reason != "" {
				status += ": " + string(c.Reason)
			}
			table = append(table, []string{
				c.ConvertedAt.Local().Format(time.DateTime),
				c.Source,
				strconv.Itoa(c.Pages),
				status,
				c.Duration.Round(time.Millisecond).String(),
			})
		}
		app.ui.Table([]string{"WHEN", "SOURCE", "PAGES", "STATUS", "TOOK"}, table)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsSetCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of conversions to show (0 = all)")
	rootCmd.AddCommand(settingsCmd, historyCmd)
}

func requireStore() (*settings.Store, error) {
	if app.store == nil {
		return nil, fmt.Errorf("settings store is disabled or unavailable (%s)", app.cfg.Settings.Path)
	}
	return app.store, nil
}
