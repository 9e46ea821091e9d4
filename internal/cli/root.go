package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	// configErr is set when an explicitly requested config file cannot be read
	configErr error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "citeaudit",
	Short: "citeaudit - citation support audit for literature reviews",
	Long: `citeaudit checks whether the claims in literature reviews are supported
by the sources they cite.

Each cited sentence is linked to a source document in your corpus, compared
against the best matching passages, and given a verdict:

  PASS               a passage supports the claim
  UNSUPPORTED_FAIL   the source was found but no passage supports the claim
  UNRESOLVED_FAIL    no source document matched the citation

For failing claims a grounded rewrite is proposed, or the claim is marked
no-rewrite when the corpus offers nothing to ground one.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of citeaudit.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("citeaudit %s\n", Version)
	},
}

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "v0.1.0"

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.citeaudit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".citeaudit"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CITEAUDIT_*
	viper.SetEnvPrefix("CITEAUDIT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	bindEnvKeys()

	err := viper.ReadInConfig()
	switch {
	case err == nil:
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	case cfgFile != "":
		// The default file is optional, an explicit one is not
		configErr = fmt.Errorf("read config %s: %w", cfgFile, err)
	}
}
