package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karthikraju391/matchchat/chat"
	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for matchchat conversations",
	Long: `chatcli opens a one-to-one conversation with another user, prints its
history and streams new messages. Lines typed on stdin are sent.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("server", "s", "", "chat server URL (overrides config)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "local user id")
	rootCmd.PersistentFlags().StringP("name", "n", "", "display name (defaults to the user id)")
}

// clientConfig loads the config file and applies the persistent flags.
func clientConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Client.ServerURL = server
	}
	logger.InitWriter(os.Stderr, cfg.LogLevel)
	return cfg, nil
}

func identity(cmd *cobra.Command) chat.StaticIdentity {
	user, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = user
	}
	return chat.StaticIdentity{ID: user, DisplayName: name}
}

func main() {
	Execute()
}
