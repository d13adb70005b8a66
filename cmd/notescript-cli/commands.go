package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notevault/notescript/internal/config"
	"github.com/notevault/notescript/internal/engine"
	"github.com/notevault/notescript/internal/events"
	"github.com/notevault/notescript/internal/vault"
	"github.com/notevault/notescript/pkg/client"
)

// evalFile is the on-disk request document for the eval command. It mirrors
// the API request except that the script may live in a separate file.
type evalFile struct {
	Script              string                 `yaml:"script" json:"script"`
	ScriptFile          string                 `yaml:"scriptFile" json:"scriptFile"`
	Entry               string                 `yaml:"entry" json:"entry"`
	VaultID             string                 `yaml:"vaultId" json:"vaultId"`
	TimeoutMs           int64                  `yaml:"timeoutMs" json:"timeoutMs"`
	AllowedCapabilities []string               `yaml:"allowedCapabilities" json:"allowedCapabilities"`
	ContextVariables    map[string]interface{} `yaml:"contextVariables" json:"contextVariables"`
}

// getClient creates a client from cobra command flags.
func getClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	return client.NewClient(client.Config{
		BaseURL: server,
		Token:   token,
		Timeout: 5 * time.Minute,
	})
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <request.yaml>",
		Short: "Run a script against a vault",
		Long:  `Run a script described by a YAML or JSON request document against a vault`,
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}

	cmd.Flags().String("vault", "", "Vault id (overrides the request document)")
	cmd.Flags().Int64("timeout", 0, "Timeout in milliseconds (overrides the request document)")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}

	var doc evalFile
	if filepath.Ext(args[0]) == ".json" {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse request JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse request YAML: %w", err)
		}
	}

	script := doc.Script
	if script == "" && doc.ScriptFile != "" {
		scriptPath := doc.ScriptFile
		if !filepath.IsAbs(scriptPath) {
			scriptPath = filepath.Join(filepath.Dir(args[0]), scriptPath)
		}
		scriptData, err := os.ReadFile(scriptPath)
		if err != nil {
			return fmt.Errorf("failed to read script file: %w", err)
		}
		script = string(scriptData)
	}

	req := engine.Request{
		Script:              script,
		Entry:               doc.Entry,
		VaultID:             doc.VaultID,
		TimeoutMs:           doc.TimeoutMs,
		AllowedCapabilities: doc.AllowedCapabilities,
		ContextVariables:    doc.ContextVariables,
	}
	if v, _ := cmd.Flags().GetString("vault"); v != "" {
		req.VaultID = v
	}
	if t, _ := cmd.Flags().GetInt64("timeout"); t > 0 {
		req.TimeoutMs = t
	}

	result, err := getClient(cmd).Evaluate(context.Background(), req)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if !result.Success {
		fmt.Printf("Evaluation failed (%s): %s\n", result.ErrorDetails.Kind, result.ErrorDetails.Message)
		if result.ErrorDetails.Suggestion != "" {
			fmt.Printf("Suggestion: %s\n", result.ErrorDetails.Suggestion)
		}
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Printf("Completed in %dms\n", result.ExecutionTimeMs)

	return nil
}

func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the capability catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caps, err := getClient(cmd).ListCapabilities(context.Background())
			if err != nil {
				return err
			}
			for _, name := range caps {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage vaults",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getClient(cmd).CreateVault(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created vault %s (%s)\n", v.Name, v.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "notes <vault-id>",
		Short: "List the notes in a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := getClient(cmd).ListNotes(context.Background(), args[0])
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Printf("%s  %s\n", n.ID, n.Title)
			}
			return nil
		},
	})

	cmd.AddCommand(newNoteAddCmd())

	return cmd
}

func newNoteAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-note <vault-id> <title>",
		Short: "Create a note in a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, _ := cmd.Flags().GetString("content")
			contentFile, _ := cmd.Flags().GetString("file")
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("failed to read content file: %w", err)
				}
				content = string(data)
			}

			note, err := getClient(cmd).CreateNote(context.Background(), args[0], vault.Note{
				Title:   args[1],
				Content: content,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created note %s (%s)\n", note.Title, note.ID)
			return nil
		},
	}

	cmd.Flags().String("content", "", "Note content")
	cmd.Flags().String("file", "", "Read note content from a file")

	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream evaluation events from Redis",
		Long:  "Subscribes to the script_evaluations channel and prints each event as a JSON line. Runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	cmd.Flags().String("redis", "localhost:6379", "Redis address")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database number")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("redis")
	password, _ := cmd.Flags().GetString("redis-password")
	db, _ := cmd.Flags().GetInt("redis-db")

	redisClient, err := events.ConnectRedis(&config.RedisConfig{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	sub := events.NewSubscriber(redisClient)
	sub.AddHandler(jsonLineHandler{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := sub.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// jsonLineHandler prints each evaluation event as one JSON line on stdout.
type jsonLineHandler struct{}

func (jsonLineHandler) HandleEvaluation(_ context.Context, event events.EvaluationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List evaluation history",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().String("vault", "", "Filter by vault id")
	cmd.Flags().Int("limit", 20, "Maximum records to list")
	cmd.Flags().Bool("failed", false, "Only failed evaluations")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter := client.HistoryFilter{}
	filter.VaultID, _ = cmd.Flags().GetString("vault")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if failed, _ := cmd.Flags().GetBool("failed"); failed {
		success := false
		filter.Success = &success
	}

	records, err := getClient(cmd).ListHistory(context.Background(), filter)
	if err != nil {
		return err
	}

	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = rec.ErrorKind
		}
		fmt.Printf("%s  %-10s  %6dms  %s\n",
			rec.CreatedAt.Format(time.RFC3339), status, rec.ExecutionTimeMs, rec.ID)
	}
	return nil
}
