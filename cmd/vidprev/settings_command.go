package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/database"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change stored settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database()
			if err != nil {
				return err
			}
			all, err := db.GetAllSettings()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			slices.Sort(keys)

			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{k, all[k]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a setting; preview settings are validated first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database()
			if err != nil {
				return err
			}
			key, value := args[0], args[1]
			if _, ok := database.DefaultSettings[key]; !ok {
				return fmt.Errorf("unknown setting %q", key)
			}
			if err := checkSetting(db, key, value); err != nil {
				return err
			}
			if err := db.SetSetting(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset KEY",
		Short: "Restore a setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database()
			if err != nil {
				return err
			}
			def, ok := database.DefaultSettings[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			if err := db.SetSetting(args[0], def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], def)
			return nil
		},
	})

	return cmd
}

// overlaySettings answers one key from a pending write and the rest from
// the store.
type overlaySettings struct {
	base       config.SettingsGetter
	key, value string
}

func (o overlaySettings) GetSetting(key string) (string, error) {
	if key == o.key {
		return o.value, nil
	}
	return o.base.GetSetting(key)
}

// checkSetting rejects values the loader would silently ignore and preview
// values that fail validation.
func checkSetting(db config.SettingsGetter, key, value string) error {
	var err error
	switch key {
	case config.KeyStartTime, config.KeyTranscodeWidth, config.KeyHoverDelay,
		"log.max_size_mb", "log.max_backups", "log.max_age_days":
		_, err = strconv.Atoi(value)
	case config.KeyPlaybackSpeed, config.KeyMutationThreshold:
		_, err = strconv.ParseFloat(value, 64)
	case config.KeyNavigationPoll, config.KeyVisibilityPoll:
		_, err = time.ParseDuration(value)
	case "log.compress":
		_, err = strconv.ParseBool(value)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}

	if strings.HasPrefix(key, "preview.") {
		if _, err := config.LoadPreview(config.NewLoader(overlaySettings{base: db, key: key, value: value})); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}
