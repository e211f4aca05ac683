package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/quarryline/netsync/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "netsync",
		Short: "Host or join a replicated game session",
		Long: `netsync runs one side of a host-authoritative game session.

The host owns every networked object, admits peers and bootstraps them with
a snapshot. Clients load scenes, buffer object updates while loading and
replay them once the scene is ready.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $NETSYNC_CONFIG or config/netsync.toml)")

	rootCmd.AddCommand(
		hostCmd(&cfgPath),
		joinCmd(&cfgPath),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mfatal:\033[0m %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("NETSYNC_CONFIG"); p != "" {
		return p
	}
	return "config/netsync.toml"
}

func printSection(title string) {
	n := 46 - len(title) - 1
	if n < 3 {
		n = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", n))
}

func printStat(label string, count int) {
	num := fmt.Sprintf("%d", count)
	dots := 42 - len(label) - len(num)
	if dots < 3 {
		dots = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dots), num)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("netsync %s (%s)\n", version, commit)
		},
	}
}
