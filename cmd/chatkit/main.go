// Package main provides the chatkit CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/chatkit/cli"
)

var (
	// Global flags
	modelID      string
	dbPath       string
	mcpConfig    string
	showThinking bool
	verbose      bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "chatkit",
		Short: "Chat with OpenAI, Claude, Gemini, Perplexity and DeepSeek models",
		Long: `A terminal chat client over one model registry.

Processors register when their API key is set (OPENAI_API_KEY, ANTHROPIC_API_KEY,
GEMINI_API_KEY, PERPLEXITY_API_KEY, DEEPSEEK_API_KEY). The lorem-ipsum model is
always available offline. Threads are stored in SQLite (--db, CHATKIT_DB_PATH).`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&modelID, "model", "m", "", "Model id or unique id prefix")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path for threads (\":memory:\" keeps nothing)")
	rootCmd.PersistentFlags().StringVar(&mcpConfig, "mcp-config", "", "Path to MCP server definitions")
	rootCmd.PersistentFlags().BoolVarP(&showThinking, "thinking", "t", false, "Show reasoning and tool activity")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(threadsCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(serversCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Model:        modelID,
		DBPath:       dbPath,
		MCPFile:      mcpConfig,
		ShowThinking: showThinking,
		Verbose:      verbose,
	}
}

// withRuntime builds the runtime, runs fn and releases it.
func withRuntime(fn func(rt *cli.Runtime) error) error {
	rt, err := cli.Setup(options())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func chatCmd() *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Chat(context.Background(), rt, threadID, os.Stdin, os.Stdout)
			})
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Resume a stored thread")

	return cmd
}

func askCmd() *cobra.Command {
	var threadID string
	var files []string
	var record string

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Ask(context.Background(), rt, cli.AskRequest{
					Prompt:     strings.Join(args, " "),
					ThreadID:   threadID,
					Files:      files,
					RecordPath: record,
				}, os.Stdout)
			})
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Continue a stored thread")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Attach a file (repeatable)")
	cmd.Flags().StringVar(&record, "record", "", "Write the chunk stream to a recording file")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				cli.ListModels(rt, os.Stdout)
				return nil
			})
		},
	}
}

func threadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List stored threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.ListThreads(context.Background(), rt, os.Stdout)
			})
		},
	}
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Render a chunk recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Replay(context.Background(), args[0], rt.Settings.LLM.ReplayDelay,
					showThinking, rt.Logger, os.Stdout)
			})
		},
	}
	return cmd
}

func serversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "Probe configured MCP servers and list their tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.ProbeServers(context.Background(), rt, os.Stdout)
			})
		},
	}
}
