package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	runsCmd.Flags().DurationVar(&runsSince, "since", 24*time.Hour, "how far back to look")
	rootCmd.AddCommand(runsCmd)
}

var runsSince time.Duration

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent agent runs and display transitions",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	client, closeConn, err := dialAgent()
	if err != nil {
		return err
	}
	defer closeConn()

	now := time.Now()
	h, err := client.GetRuns(now.Add(-runsSince), now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range h.Runs {
		stopped := "running or killed"
		if r.StoppedAt > 0 {
			stopped = "stopped " + time.Unix(r.StoppedAt, 0).Format(time.DateTime)
		}
		fmt.Fprintf(out, "%s  %s  %s  pid=%d\n", r.ID, time.Unix(r.StartedAt, 0).Format(time.DateTime), stopped, r.PID)
	}
	for _, e := range h.DisplayEvents {
		fmt.Fprintf(out, "%s  display %s\n", time.Unix(e.Timestamp, 0).Format(time.DateTime), e.State)
	}
	return nil
}
