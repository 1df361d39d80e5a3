package cmd

import (
	"fmt"

	"github.com/encodeous/station/core"
	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the station config and its timetable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.ReadStationConfig(configPath)
		if err != nil {
			return err
		}
		state.ExpandStationConfig(cfg)
		if err := state.StationConfigValidator(cfg); err != nil {
			return err
		}
		snap, err := timetable.Load(cfg.Timetable)
		if err != nil {
			return err
		}
		if snap.Station != cfg.Name {
			return fmt.Errorf("timetable %s belongs to %s, not %s", cfg.Timetable, snap.Station, cfg.Name)
		}

		cfgYaml, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Println("Config is valid")
		fmt.Println(string(cfgYaml))
		fmt.Printf("%d trips to %d destinations\n", len(snap.Trips), len(snap.Destinations()))
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
