package cli

import (
	"fmt"
	"os"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	dbussvc "github.com/cptspacemanspiff/battery-status/internal/dbus"
)

func init() {
	rootCmd.AddCommand(resetJournalCmd)
}

var resetJournalCmd = &cobra.Command{
	Use:   "reset-journal",
	Short: "Delete the run journal database",
	Args:  cobra.NoArgs,
	RunE:  runResetJournal,
}

func runResetJournal(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, err := agentRunning(); err != nil {
		logger.Warn("could not check for a running agent", "err", err)
	} else if running {
		return fmt.Errorf("agent is running; stop it before resetting the journal")
	}

	path := cfg.Storage.DBPath
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete journal: %w", err)
		}
	}
	logger.Info("journal deleted", "path", path)
	return nil
}

func agentRunning() (bool, error) {
	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var has bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, dbussvc.BusName).Store(&has); err != nil {
		return false, err
	}
	return has, nil
}
