package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var flags struct {
	server    string
	sessionID string
	token     string
	timeout   time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Command line client for the obrolan chat server",
	Long: `chatclient talks to a running obrolan server. It can ask a question in
blocking mode, follow a streamed reply over Server-Sent Events or a websocket,
and inspect or reset a session's history.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// .env is optional
	_ = godotenv.Load()

	if !cmd.Flags().Changed("server") {
		if server := os.Getenv("OBROLAN_SERVER"); server != "" {
			flags.server = server
		}
	}
	if !cmd.Flags().Changed("token") {
		if token := os.Getenv("OBROLAN_TOKEN"); token != "" {
			flags.token = token
		}
	}
	return nil
}

func newClient() *Client {
	return NewClient(flags.server, flags.sessionID, flags.token, flags.timeout)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Base URL of the chat server")
	rootCmd.PersistentFlags().StringVar(&flags.sessionID, "session", "", "Session ID sent as X-Session-ID")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "Session token sent as a bearer token")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "Request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
