package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/station/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var (
	newForce bool
	newHost  string
	newDir   string
)

var newCmd = &cobra.Command{
	Use:   "new NAME CLIENT_PORT STATION_PORT [NEIGHBOUR_PORT...]",
	Short: "Write a station config file",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := stationFromArgs(args, newHost, newDir)
		if err != nil {
			return err
		}
		state.ExpandStationConfig(cfg)
		if err := state.StationConfigValidator(cfg); err != nil {
			return err
		}
		if _, err := os.Stat(configPath); err == nil && !newForce {
			return fmt.Errorf("%s already exists, pass --force to overwrite it", configPath)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := os.WriteFile(configPath, out, 0600); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().BoolVarP(&newForce, "force", "f", false, "Overwrite an existing config")
	newCmd.Flags().StringVar(&newHost, "host", state.DefaultHost, "Address every port is bound on")
	newCmd.Flags().StringVarP(&newDir, "timetable-dir", "d", ".", "Directory holding tt-NAME files")
}
