package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Take a reading now, as if the notification was clicked",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	client, closeConn, err := dialAgent()
	if err != nil {
		return err
	}
	defer closeConn()

	return client.Refresh()
}
