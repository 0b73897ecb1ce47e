package cmd

import (
	"fmt"
	"os"

	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	versionFlag bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gimera",
	Short: "Compose a Git repository from declaratively vendored or submoduled sub-repositories",
	Long: `gimera reconciles a gimera.yml manifest against a git working tree: each
declared entry is either integrated (vendored as a plain tracked
subtree with optional local patches) or kept as a git submodule,
pinned to a branch or a fixed commit.`,
	Run: func(cmd *cobra.Command, args []string) {
		if versionFlag {
			fmt.Println(version.GetVersion())
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a GimeraError's kind to a distinct process exit code
// (spec §7), falling back to 1 for anything untyped.
func exitCode(err error) int {
	kind, ok := gimeraerrors.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case gimeraerrors.KindManifest:
		return 2
	case gimeraerrors.KindFetch:
		return 3
	case gimeraerrors.KindDirtyWorkingTree:
		return 4
	case gimeraerrors.KindCacheIntegrity:
		return 5
	case gimeraerrors.KindPatchApply:
		return 6
	case gimeraerrors.KindMerge:
		return 7
	case gimeraerrors.KindSubmoduleAdd:
		return 8
	default:
		return 1
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gimerarc.yaml)")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Show version information")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gimerarc")
	}

	viper.SetEnvPrefix("GIMERA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
