package cmd

import (
	"github.com/encodeous/station/core"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a station from its config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.ReadStationConfig(configPath)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		return core.Bootstrap(*cfg, logPath, verbose)
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().String("log", "", "Also write logs to this file")
}
