package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/ruleconv/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ruleconv",
	Short: "Merge proxy rule lists into canonical sing-box rule sets.",
	Long: `ruleconv fetches rule lists written for different proxy clients (Clash/Surge style
lists, YAML payload files, sing-box JSON rule sets), maps their keywords onto one
vocabulary, merges and deduplicates them and writes byte-stable sing-box source
rule sets, optionally compiled to .srs with sing-box.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ruleconv.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")

	viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".ruleconv")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RULECONV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	utils.Log.SetOutput(os.Stderr)
}

func setDefaults() {
	viper.SetDefault("links", "links.txt")
	viper.SetDefault("output", ".")
	viper.SetDefault("concurrency", 5)
	viper.SetDefault("timeout", "2m")
	viper.SetDefault("fetch.retries", 3)
	viper.SetDefault("fetch.timeout", "60s")
	viper.SetDefault("proxy", "")
	viper.SetDefault("compiler.path", "sing-box")
	viper.SetDefault("compiler.enabled", true)
	viper.SetDefault("db.path", "ruleconv.sqlite")
}

// defaultConfigPath is where `ruleconv config init` writes.
func defaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ruleconv.yaml"), nil
}
