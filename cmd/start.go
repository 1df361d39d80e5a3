package cmd

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/encodeous/station/core"
	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"github.com/spf13/cobra"
)

var (
	startHost         string
	startTimetableDir string
)

// stationFromArgs builds a config from "NAME CLIENT_PORT STATION_PORT [NEIGHBOUR_PORT...]", all on one host.
func stationFromArgs(args []string, host, dir string) (*state.StationCfg, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("expected NAME CLIENT_PORT STATION_PORT [NEIGHBOUR_PORT...]")
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	port := func(s string) (netip.AddrPort, error) {
		p, err := strconv.ParseUint(s, 10, 16)
		if err != nil || p == 0 {
			return netip.AddrPort{}, fmt.Errorf("invalid port %q", s)
		}
		return netip.AddrPortFrom(addr, uint16(p)), nil
	}
	cfg := &state.StationCfg{
		Name:      args[0],
		Timetable: timetable.PathFor(dir, args[0]),
	}
	if cfg.ClientBind, err = port(args[1]); err != nil {
		return nil, err
	}
	if cfg.StationBind, err = port(args[2]); err != nil {
		return nil, err
	}
	for _, a := range args[3:] {
		n, err := port(a)
		if err != nil {
			return nil, err
		}
		cfg.Neighbours = append(cfg.Neighbours, n)
	}
	return cfg, nil
}

var startCmd = &cobra.Command{
	Use:   "start NAME CLIENT_PORT STATION_PORT [NEIGHBOUR_PORT...]",
	Short: "Run a station without a config file",
	Long:  `Runs a station on a single host. The timetable is read from tt-NAME in the timetable directory.`,
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := stationFromArgs(args, startHost, startTimetableDir)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		return core.Bootstrap(*cfg, "", verbose)
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	startCmd.Flags().StringVar(&startHost, "host", state.DefaultHost, "Address every port is bound on")
	startCmd.Flags().StringVarP(&startTimetableDir, "timetable-dir", "d", ".", "Directory holding tt-NAME files")
}
