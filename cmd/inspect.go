package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/ruleconv/internal/utils"
	"github.com/sw33tLie/ruleconv/pkg/canonical"
	"github.com/sw33tLie/ruleconv/pkg/parser"
	"github.com/sw33tLie/ruleconv/pkg/pipeline"
	"github.com/sw33tLie/ruleconv/pkg/rules"
	"github.com/tidwall/gjson"
)

// inspectCmd converts a single source and prints the result instead of
// writing files.
var inspectCmd = &cobra.Command{
	Use:   "inspect <source>",
	Short: "Print the canonical rule set of one source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID := args[0]
		showRows, _ := cmd.Flags().GetBool("rows")
		query, _ := cmd.Flags().GetString("query")

		f, err := newFetcher()
		if err != nil {
			return err
		}
		content, err := f.Fetch(context.Background(), sourceID)
		if err != nil {
			return err
		}

		vocab := rules.DefaultVocabulary()
		doc, parsed, err := pipeline.Build(parser.New(vocab), vocab, sourceID, content)
		if err != nil {
			return err
		}
		utils.Log.Debugf("%s parsed with the %s grammar, %d logical rules dropped", sourceID, parsed.Grammar, parsed.DroppedLogical)

		for _, w := range rules.Lint(doc) {
			utils.Log.Warn(w.String())
		}

		if showRows {
			for _, r := range rules.Normalize(parsed.Rows, vocab) {
				fmt.Printf("%s\t%s\n", r.Kind, r.Value)
			}
			return nil
		}

		out, err := canonical.Marshal(doc.Tree())
		if err != nil {
			return err
		}

		if query != "" {
			res := gjson.GetBytes(out, query)
			if !res.Exists() {
				return fmt.Errorf("query %q matched nothing", query)
			}
			fmt.Println(res.String())
			return nil
		}

		os.Stdout.Write(out)
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("rows", false, "Print normalized rows (kind<TAB>value) instead of the rule set")
	inspectCmd.Flags().StringP("query", "q", "", "gjson path applied to the rule set, e.g. 'rules.#.domain_suffix'")
}
