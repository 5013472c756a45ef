package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askFlags struct {
	stream bool
	ws     bool
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send a prompt and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		client := newClient()
		out := cmd.OutOrStdout()

		write := func(fragment string) error {
			_, err := fmt.Fprint(out, fragment)
			return err
		}

		var err error
		switch {
		case askFlags.ws:
			_, err = client.AskWebSocket(cmd.Context(), prompt, write)
		case askFlags.stream:
			_, err = client.AskStream(cmd.Context(), prompt, write)
		default:
			var reply string
			reply, err = client.Ask(cmd.Context(), prompt)
			if err == nil {
				err = write(reply)
			}
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(out)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the turns recorded for the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := newClient().History(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session %s, %d turns\n", history.SessionID, len(history.Turns))
		for _, turn := range history.Turns {
			fmt.Fprintf(out, "%s: %s\n", turn.Role, turn.Text)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the session's history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start a new session and print its token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newClient().NewSession(cmd.Context())
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(session)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askFlags.stream, "stream", false, "Stream the reply over Server-Sent Events")
	askCmd.Flags().BoolVar(&askFlags.ws, "ws", false, "Stream the reply over a websocket")
	askCmd.MarkFlagsMutuallyExclusive("stream", "ws")

	rootCmd.AddCommand(askCmd, historyCmd, resetCmd, sessionCmd)
}
