package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rainbowcity/dialogue/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "dialogued",
	Short: "Dialogue orchestration daemon",
	Long:  "dialogued runs multi-topology dialogues: state tracking, routing, tool-augmented generation, and push delivery.",
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".dialogue", "config.yaml")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
