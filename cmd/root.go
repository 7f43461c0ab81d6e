package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agroguard/leafguard-go/cmd/file"
	"github.com/agroguard/leafguard-go/cmd/serve"
	"github.com/agroguard/leafguard-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leafguard",
		Short: "LeafGuard plant disease detection CLI",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		file.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.LeafNet.ModelPath, "model", viper.GetString("leafnet.modelpath"), "Path to the .tflite model file")
	rootCmd.PersistentFlags().Float64VarP(&settings.LeafNet.ConfidenceGate, "threshold", "t", viper.GetFloat64("leafnet.confidencegate"), "Minimum confidence (percent) for a detection to count")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
