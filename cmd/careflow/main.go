// Command careflow drives care conversations from the terminal.
//
//	careflow chat                       # interactive session
//	careflow turn -s abc "I have a headache"
//	careflow end -s abc
//
// Configuration comes from --config (YAML), overlaid with CAREFLOW_*
// environment variables; a .env file is loaded first when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/careflow/pkg/careflow/config"
)

const envPrefix = "CAREFLOW_"

type rootFlags struct {
	configPath string
	envFile    string
	sessionID  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "careflow",
		Short:         "Interruptible care conversation workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVarP(&flags.sessionID, "session", "s", "", "session ID")

	root.AddCommand(newChatCmd(flags), newTurnCmd(flags), newEndCmd(flags))
	return root
}

// loadConfig reads the config file and the environment overlay.
func loadConfig(flags *rootFlags) (config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}
	cfg := config.New(nil)
	if flags.configPath != "" {
		var err error
		if cfg, err = config.FromFile(flags.configPath); err != nil {
			return config.Config{}, err
		}
	}
	return cfg.WithEnv(envPrefix), nil
}

// withApp loads config, wires the app, runs fn, and closes the app.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(*app) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
