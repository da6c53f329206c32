package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/ruleconv/internal/utils"
	"github.com/sw33tLie/ruleconv/pkg/compiler"
	"github.com/sw33tLie/ruleconv/pkg/fetcher"
	"github.com/sw33tLie/ruleconv/pkg/pipeline"
	"github.com/sw33tLie/ruleconv/pkg/sources"
	"github.com/sw33tLie/ruleconv/pkg/storage"
)

// convertCmd implements: ruleconv convert [sources...]
//
//	--links string      File with one source per line (used when no sources are given)
//	--output string     Output directory
//	--concurrency int   Sources processed in parallel
//	--timeout duration  Per-source deadline
//	--no-compile        Only write JSON rule sets
//	--compiler string   sing-box binary
//	--db                Record rule history and print changes
//	--strict            Exit non-zero if any source failed
var convertCmd = &cobra.Command{
	Use:   "convert [sources...]",
	Short: "Convert rule lists into canonical rule sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceIDs := args
		if len(sourceIDs) == 0 {
			links := viper.GetString("links")
			ids, err := sources.Load(links)
			if err != nil {
				return fmt.Errorf("reading links file: %w", err)
			}
			sourceIDs = ids
		}
		if len(sourceIDs) == 0 {
			utils.Log.Info("No sources to convert.")
			return nil
		}

		f, err := newFetcher()
		if err != nil {
			return err
		}

		cfg := pipeline.Config{
			Fetcher:     f,
			OutputDir:   viper.GetString("output"),
			Concurrency: viper.GetInt("concurrency"),
			Timeout:     viper.GetDuration("timeout"),
			Log:         utils.Log,
		}

		if viper.GetBool("compiler.enabled") {
			sb := compiler.NewSingBox(viper.GetString("compiler.path"))
			if err := sb.Available(); err != nil {
				utils.Log.Warnf("%v; every source will fail to compile (use --no-compile to only write JSON)", err)
			}
			cfg.Compiler = sb
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		useDB, _ := cmd.Flags().GetBool("db")
		if useDB {
			dbPath, err := utils.ResolveDBPath(viper.GetString("db.path"))
			if err != nil {
				return err
			}
			lockCtx, cancel := lockWaitContext(ctx)
			lock, err := utils.AcquireDBLock(lockCtx, dbPath)
			cancel()
			if err != nil {
				return err
			}
			defer lock.Release()

			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			cfg.DB = db
		}

		cfg.OnSourceDone = func(r pipeline.SourceResult) {
			if r.OK() {
				printChanges(r.Changes)
			}
		}

		result, err := pipeline.Run(ctx, cfg, sourceIDs)
		if err != nil {
			return err
		}

		printSummary(result)

		strict, _ := cmd.Flags().GetBool("strict")
		if failed := result.Failed(); strict && len(failed) > 0 {
			return fmt.Errorf("%d of %d sources failed", len(failed), len(result.Sources))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("links", "links.txt", "File with one source URL or path per line")
	convertCmd.Flags().StringP("output", "o", ".", "Output directory for .json and .srs files")
	convertCmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "Number of sources converted in parallel")
	convertCmd.Flags().Duration("timeout", pipeline.DefaultTimeout, "Deadline for a single source (fetch, parse, write and compile) and for waiting on the history database lock")
	convertCmd.Flags().Int("retries", fetcher.DefaultRetries, "HTTP retries per source")
	convertCmd.Flags().Bool("no-compile", false, "Only write JSON rule sets, do not run sing-box")
	convertCmd.Flags().String("compiler", compiler.DefaultBinary, "Path to the sing-box binary")
	convertCmd.Flags().Bool("db", false, "Record rule history in the database and print changes")
	convertCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ruleconv.sqlite in CWD)")
	convertCmd.Flags().Bool("strict", false, "Exit with an error if any source failed")

	viper.BindPFlag("links", convertCmd.Flags().Lookup("links"))
	viper.BindPFlag("output", convertCmd.Flags().Lookup("output"))
	viper.BindPFlag("concurrency", convertCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("timeout", convertCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("fetch.retries", convertCmd.Flags().Lookup("retries"))
	viper.BindPFlag("compiler.path", convertCmd.Flags().Lookup("compiler"))
	viper.BindPFlag("db.path", convertCmd.Flags().Lookup("dbpath"))

	convertCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if noCompile, _ := cmd.Flags().GetBool("no-compile"); noCompile {
			viper.Set("compiler.enabled", false)
		}
	}
}

// newFetcher builds the HTTP fetcher from the current configuration.
func newFetcher() (*fetcher.HTTPFetcher, error) {
	return fetcher.New(fetcher.Options{
		Retries: viper.GetInt("fetch.retries"),
		Timeout: viper.GetDuration("fetch.timeout"),
		Proxy:   viper.GetString("proxy"),
	})
}

func printChanges(changes []storage.Change) {
	for _, c := range changes {
		ts := c.OccurredAt.Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-7s  %s  %s  %s\n", ts, c.ChangeType, c.Name, c.Kind, c.Value)
	}
}

func printSummary(result *pipeline.RunResult) {
	for _, r := range result.Sources {
		if !r.OK() {
			stage := pipeline.StageOf(r.Err)
			var se *pipeline.StageError
			cause := r.Err
			if errors.As(r.Err, &se) {
				cause = se.Err
			}
			fmt.Fprintf(os.Stderr, "FAIL  %-20s  %-7s  %s: %v\n", r.Name, stage, r.Source, cause)
			continue
		}
		fmt.Printf("OK    %-20s  %-7s  %s\n", r.Name, r.Grammar, formatCounts(r.Counts))
	}
	utils.Log.Infof("%d converted, %d failed", len(result.Processed()), len(result.Failed()))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}
