package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/ruleconv/internal/utils"
	"github.com/sw33tLie/ruleconv/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the ruleconv history database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints rule counts per source in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tRULES\tKINDS\tSOURCE\t")

		var totalRules int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", s.Name, s.RuleCount, s.Kinds, s.SourceURL)
			totalRules += s.RuleCount
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t\t%d sources\t\n", totalRules, len(stats))

		w.Flush()

		return nil
	},
}

// sourcesCmd lists every source with stored rules.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources with stored rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := db.ListSources(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tRULES\tLAST SEEN\tSOURCE\t")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t\n", s.Name, s.RuleCount, s.LastSeenAt, s.URL)
		}
		return w.Flush()
	},
}

// forgetCmd drops a source's stored rules.
var forgetCmd = &cobra.Command{
	Use:   "forget <source>",
	Short: "Remove all stored rules of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}

		ctx := context.Background()
		return utils.WithDBLock(ctx, dbPath, viper.GetDuration("timeout"), func() error {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return forgetSource(ctx, db, args[0], os.Stdout)
		})
	},
}

func forgetSource(ctx context.Context, db *storage.DB, source string, out io.Writer) error {
	n, err := db.GetRuleCount(ctx, source)
	if err != nil {
		return err
	}
	if err := db.RemoveSource(ctx, source); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	fmt.Fprintf(out, "Removed %s (%d rules)\n", source, n)
	return nil
}

// rulesCmd prints the stored rules, optionally filtered.
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List stored rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		opts := storage.ListOptions{}
		opts.SourceFilter, _ = cmd.Flags().GetString("source")
		opts.Kind, _ = cmd.Flags().GetString("kind")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			opts.Since = time.Now().Add(-since)
		}
		return printRules(context.Background(), db, opts, os.Stdout)
	},
}

func printRules(ctx context.Context, db *storage.DB, opts storage.ListOptions, out io.Writer) error {
	entries, err := db.ListEntries(ctx, opts)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching rules.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tVALUE\t")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", e.Name, e.Kind, e.Value)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(sourcesCmd)
	dbCmd.AddCommand(forgetCmd)
	dbCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().String("source", "", "Only rules of sources whose URL contains this text or whose name equals it")
	rulesCmd.Flags().String("kind", "", "Only rules of this kind (e.g. domain_suffix, ip_cidr, logical)")
	rulesCmd.Flags().Duration("since", 0, "Only rules seen within this long (e.g. 24h)")
	dbCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ruleconv.sqlite in CWD)")
}
