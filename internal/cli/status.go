package cli

import (
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	dbussvc "github.com/cptspacemanspiff/battery-status/internal/dbus"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running agent's state and a fresh reading",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, closeConn, err := dialAgent()
	if err != nil {
		return err
	}
	defer closeConn()

	st, err := client.GetStatus()
	if err != nil {
		return err
	}
	stats, err := client.GetCurrentStats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", st.RunID)
	if st.Recovered {
		fmt.Fprintln(out, "           (restarted after an unclean stop)")
	}
	fmt.Fprintf(out, "Display:   %s\n", st.Display)
	fmt.Fprintf(out, "Scheduler: %s\n", st.Phase)
	fmt.Fprintf(out, "Refreshes: %d\n", st.Cycles)
	if st.NextTick > 0 {
		fmt.Fprintf(out, "Next tick: %s\n", time.UnixMilli(st.NextTick).Format("15:04:05.000"))
	}
	if stats.Battery == nil {
		fmt.Fprintln(out, "Battery:   unavailable")
	} else {
		b := stats.Battery
		fmt.Fprintf(out, "Battery:   %.1f °C  %.1f mA  %d mV  %s\n", b.TemperatureC, b.CurrentMA, b.VoltageMV, b.Health)
	}
	if id := stats.Identity; id != nil {
		fmt.Fprintf(out, "Supply:    %s %s %s (%s)\n", id.Supply, id.Manufacturer, id.Model, id.Technology)
		fmt.Fprintf(out, "Wear:      %d charge cycles", id.CycleCount)
		if id.WearPct > 0 {
			fmt.Fprintf(out, ", %.1f%% wear", id.WearPct)
		}
		fmt.Fprintln(out)
	}
	if stats.Content != "" {
		fmt.Fprintf(out, "\n%s\n", stats.Content)
	}
	return nil
}

func dialAgent() (*dbussvc.Client, func(), error) {
	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connect session bus: %w", err)
	}
	return dbussvc.NewClient(conn), func() { conn.Close() }, nil
}
