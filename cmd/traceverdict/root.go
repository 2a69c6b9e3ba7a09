package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velasec/traceverdict"
)

var (
	cfgFile string
	quiet   bool
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "traceverdict",
	Short: "Classify agent shell traces as benign or malicious",
	Long: `traceverdict evaluates JSONL shell-command traces produced by autonomous
agents against declarative detection rules and stateful behavioral heuristics,
producing a verdict with supporting evidence. Use scan for finished traces and
watch to follow a session live.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.traceverdict.yaml)")

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output. Suppress warnings and other stuff. Cannot be used together with --debug and --quiet will take precedence.")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug mode. Enable trace logging. Cannot be used together with --quiet.")

	rootCmd.PersistentFlags().StringSlice("rules-dir", []string{},
		"Directories that contain detection rules.")
	viper.BindPFlag("rules.dir", rootCmd.PersistentFlags().Lookup("rules-dir"))

	rootCmd.PersistentFlags().StringSlice("rules-tag-filter", []string{},
		"Optional glob expressions on rule tags. Only matching rules are loaded.")
	viper.BindPFlag("rules.tags", rootCmd.PersistentFlags().Lookup("rules-tag-filter"))

	rootCmd.PersistentFlags().Int("chain-window", traceverdict.DefaultBehaviorConfig().ChainWindow,
		"Event window within which a sensitive read followed by encode/upload forms an exfiltration chain.")
	viper.BindPFlag("behavior.chain.window", rootCmd.PersistentFlags().Lookup("chain-window"))

	rootCmd.PersistentFlags().Int("credential-threshold", traceverdict.DefaultBehaviorConfig().CredentialThreshold,
		"Number of credential accesses that counts as enumeration.")
	viper.BindPFlag("behavior.credential.threshold", rootCmd.PersistentFlags().Lookup("credential-threshold"))

	rootCmd.PersistentFlags().Int("persistence-threshold", traceverdict.DefaultBehaviorConfig().PersistenceThreshold,
		"Number of distinct persistence mechanisms that trips the detector.")
	viper.BindPFlag("behavior.persistence.threshold", rootCmd.PersistentFlags().Lookup("persistence-threshold"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".traceverdict" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".traceverdict")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && debug {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})
	if quiet {
		log.SetLevel(log.ErrorLevel)
	} else if debug {
		log.SetLevel(log.TraceLevel)
	}
}

// newRuleset loads the shared immutable rule collection from configuration
func newRuleset() (*traceverdict.Ruleset, error) {
	ruleset, err := traceverdict.NewRuleset(traceverdict.Config{
		Directories: viper.GetStringSlice("rules.dir"),
		TagFilters:  viper.GetStringSlice("rules.tags"),
		Logger:      log.StandardLogger(),
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Found %d rule files, %d ok, %d failed, %d filtered",
		ruleset.Total, ruleset.Ok, ruleset.Failed, ruleset.Filtered)
	return ruleset, nil
}

func sessionConfig(ruleset *traceverdict.Ruleset) traceverdict.SessionConfig {
	behavior := traceverdict.DefaultBehaviorConfig()
	behavior.ChainWindow = viper.GetInt("behavior.chain.window")
	behavior.CredentialThreshold = viper.GetInt("behavior.credential.threshold")
	behavior.PersistenceThreshold = viper.GetInt("behavior.persistence.threshold")
	return traceverdict.SessionConfig{
		Ruleset:  ruleset,
		Behavior: behavior,
		Weights:  traceverdict.DefaultSeverityWeights(),
		Logger:   log.StandardLogger(),
	}
}
