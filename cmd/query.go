package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/encodeous/station/state"
	"github.com/spf13/cobra"
)

var (
	queryTime    string
	queryRaw     bool
	queryTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query ADDR DESTINATION",
	Short: "Asks a running station for the fastest journey to a destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := url.Values{}
		v.Set("station", args[1])
		v.Set("format", "json")
		if queryTime != "" {
			v.Set("time", queryTime)
		}
		client := &http.Client{Timeout: queryTimeout}
		resp, err := client.Get(fmt.Sprintf("http://%s/?%s", args[0], v.Encode()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if queryRaw {
			fmt.Println(string(body))
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: %s", resp.Status, body)
		}
		var res state.Result
		if err := json.Unmarshal(body, &res); err != nil {
			return err
		}
		if !res.Found() {
			fmt.Printf("No route from %s to %s after %s: %s\n", res.Source, res.Destination, res.RequestedTime, res.Reason)
			return nil
		}
		arr, _ := res.Arrival()
		fmt.Printf("%s to %s after %s, arriving %s\n", res.Source, res.Destination, res.RequestedTime, arr)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tDEPARTS\tSERVICE\tPLATFORM\tARRIVES\tAT")
		for _, leg := range res.Legs {
			t := leg.Trip
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", leg.Station, t.Departure, t.Service, t.Platform, t.Arrival, t.Destination)
		}
		return w.Flush()
	},
	GroupID: "st",
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryTime, "time", "t", "", "Leave after HH:MM, defaults to now at the station")
	queryCmd.Flags().BoolVar(&queryRaw, "json", false, "Print the raw json response")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 30*time.Second, "How long to wait for an answer")
}
