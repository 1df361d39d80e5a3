package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/encodeous/station/timetable"
	"github.com/spf13/cobra"
)

var timetableAfter string

var timetableCmd = &cobra.Command{
	Use:     "timetable FILE",
	Aliases: []string{"tt"},
	Short:   "Shows the earliest trip to each destination in a timetable file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := timetable.Load(args[0])
		if err != nil {
			return err
		}
		after := timetable.ClockOf(time.Now())
		if timetableAfter != "" {
			if after, err = timetable.ParseClock(timetableAfter); err != nil {
				return err
			}
		}
		fmt.Printf("%s (%g, %g), departures after %s\n", snap.Station, snap.X, snap.Y, after)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEPARTS\tSERVICE\tPLATFORM\tARRIVES\tDESTINATION")
		for _, t := range snap.EarliestTrips(after) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Departure, t.Service, t.Platform, t.Arrival, t.Destination)
		}
		return w.Flush()
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(timetableCmd)

	timetableCmd.Flags().StringVarP(&timetableAfter, "after", "a", "", "Earliest departure as HH:MM, defaults to now")
}
