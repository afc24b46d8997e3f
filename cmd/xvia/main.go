package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xviarchive/internal/config"
	"xviarchive/internal/engine"
	"xviarchive/internal/ois"
)

var rootCmd = &cobra.Command{
	Use:   "xvia",
	Short: "XVI Archive Tool",
	Long: `The XVI Archive Tool manages patient imaging directories on the XVI
network locations. It scans the configured roots, classifies each patient
directory against the oncology information system (archive, delete, keep or
ignore), and performs the verified archive and delete actions with a
permanent audit trail.

Directories are only ever deleted after an archive copy has been size
verified, or when the patient has plain finished-treatment data with no
clinical trial or 4D cone-beam involvement.`,
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("XVIA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("settings", "s", config.DefaultPath, "settings file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("settings", rootCmd.PersistentFlags().Lookup("settings"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

// newEngine loads settings and assembles the engine over the configured OIS.
func newEngine() (*engine.Engine, *config.Settings, error) {
	settings, err := config.Load(viper.GetString("settings"))
	if err != nil {
		return nil, nil, err
	}
	provider := ois.NewSQL(settings.OIS)
	return engine.New(settings, provider), settings, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
