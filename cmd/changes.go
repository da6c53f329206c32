package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/ruleconv/internal/utils"
	"github.com/sw33tLie/ruleconv/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent rule changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		printChanges(changes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ruleconv.sqlite in CWD)")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}

// resolveDBPath returns the history database named by --dbpath or db.path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("db.path")
	}
	return utils.ResolveDBPath(dbPath)
}

// lockWaitContext bounds how long a command waits for the history database
// lock. The per-source timeout doubles as the bound; zero waits for as long as
// ctx allows.
func lockWaitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if wait := viper.GetDuration("timeout"); wait > 0 {
		return context.WithTimeout(ctx, wait)
	}
	return context.WithCancel(ctx)
}

// openExistingDB opens the history database and fails if it does not exist
// yet.
func openExistingDB(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %s", dbPath)
	}
	return storage.Open(dbPath)
}
