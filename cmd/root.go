package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "station",
	Short: "Distributed Journey Planner Station",
	Long: `station runs one stop of a distributed journey planner.
Each station only knows its own timetable and its neighbours. Journeys are found by flooding a query through the network and collecting the fastest reply.`,
}

var configPath = "station.yaml"

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure a Station",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "st",
		Title: "Station Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "station config")
}
