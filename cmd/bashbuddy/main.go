package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bashbuddy/internal/daemon"
	"bashbuddy/internal/protocol"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
)

var flagQuiet bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "bashbuddy",
		Short: "AI-powered bash command assistant",
		Long: `BashBuddy suggests shell commands from natural language questions.

A background daemon keeps the conversation and the API connection warm,
so answers are fast and follow-up questions have context. The daemon is
started automatically on first use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = Version
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// call ensures the daemon is available and performs one request.
func call(req protocol.Request) (*protocol.Response, error) {
	mgr, err := daemon.NewManager()
	if err != nil {
		return nil, err
	}
	if err := mgr.EnsureRunning(); err != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}
	return daemon.NewClient(mgr.SocketPath()).Call(req)
}

func askCmd() *cobra.Command {
	var flagFresh bool
	var flagCmd string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask for a shell command in natural language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if flagCmd != "" {
				message = fmt.Sprintf("Help for command '%s': %s", flagCmd, message)
			}

			resp, err := call(protocol.Request{
				Command:    protocol.CommandAsk,
				Message:    message,
				ForceFresh: flagFresh,
			})
			if err != nil {
				return err
			}
			if resp.Status != protocol.StatusOK {
				return errors.New(resp.Message)
			}

			printAnswer(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagFresh, "fresh", false, "Bypass the answer cache and ask the model again")
	cmd.Flags().StringVarP(&flagCmd, "cmd", "c", "", "Command to get help for")
	return cmd
}

func printAnswer(resp *protocol.Response) {
	if !flagQuiet {
		printFunctionCalls(resp.FunctionCalls)
	}

	if resp.Command == "" {
		fmt.Println(resp.Message)
		return
	}

	fmt.Println("Command:")
	fmt.Printf("  %s\n", resp.Command)
	if resp.Explanation != "" {
		fmt.Println()
		fmt.Println("Explanation:")
		fmt.Printf("  %s\n", resp.Explanation)
	}
	if resp.Cached && !flagQuiet {
		fmt.Println()
		fmt.Println("(cached answer; use --fresh to ask again)")
	}
}

func printFunctionCalls(calls []protocol.ToolCall) {
	if len(calls) == 0 {
		return
	}
	fmt.Println("Function calls:")
	for i, c := range calls {
		var args []string
		for k, v := range c.Args {
			args = append(args, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Printf("  %d. %s(%s)\n", i+1, c.Name, strings.Join(args, ", "))
	}
	fmt.Println()
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(protocol.Request{Command: protocol.CommandReset})
			if err != nil {
				return err
			}
			if resp.Status != protocol.StatusOK {
				return errors.New(resp.Message)
			}
			if !flagQuiet {
				fmt.Println("✓ Conversation history cleared")
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(protocol.Request{Command: protocol.CommandHistory})
			if err != nil {
				return err
			}
			if resp.Status != protocol.StatusOK {
				return errors.New(resp.Message)
			}

			if len(resp.History) == 0 {
				fmt.Println("No conversation history")
				return nil
			}
			for _, turn := range resp.History {
				fmt.Printf("[%s]\n%s\n\n", turn.Role, turn.Content)
			}
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the daemon answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := daemon.NewManager()
			if err != nil {
				return err
			}
			if !daemon.NewClient(mgr.SocketPath()).Ping() {
				fmt.Println("Daemon is not responding")
				os.Exit(1)
			}
			fmt.Println("pong")
			return nil
		},
	}
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the BashBuddy daemon",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := daemon.NewManager()
			if err != nil {
				return err
			}
			if err := mgr.Start(); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					fmt.Println("Daemon is already running")
					return nil
				}
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Daemon started successfully")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := daemon.NewManager()
			if err != nil {
				return err
			}
			if err := mgr.Stop(); err != nil {
				if errors.Is(err, daemon.ErrNotRunning) {
					fmt.Println("Daemon is not running")
					return nil
				}
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Daemon stopped successfully")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := daemon.NewManager()
			if err != nil {
				return err
			}

			// Exit code 1 when the daemon is not healthy, like
			// systemctl status.
			switch st := mgr.Status(); st.State {
			case daemon.StateRunning:
				fmt.Printf("Daemon is running (pid %d)\n", st.PID)
			case daemon.StateUnresponsive:
				fmt.Printf("Daemon process exists (pid %d) but is not responding\n", st.PID)
				os.Exit(1)
			default:
				fmt.Println("Daemon is not running")
				os.Exit(1)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := daemon.NewManager()
			if err != nil {
				return err
			}
			if err := mgr.Restart(); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Daemon restarted successfully")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground (internal use)",
		Hidden: true, // used internally by daemon start
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.Run(context.Background())
		},
	})

	return cmd
}
