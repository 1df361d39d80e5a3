package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/encodeous/station/core"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Prints the state of a running station through its debug endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.ReadStationConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.DebugBind == "" {
			return fmt.Errorf("%s has no debug_bind, cannot inspect %s", configPath, cfg.Name)
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + cfg.DebugBind + "/debug/inspect")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: %s", resp.Status, body)
		}
		fmt.Print(string(body))
		return nil
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
