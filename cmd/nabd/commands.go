package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nabdhq/nabd/internal/config"
	"github.com/nabdhq/nabd/internal/linkcheck"
	"github.com/nabdhq/nabd/internal/retrieval"
	"github.com/nabdhq/nabd/internal/storage"
)

// --- seed ---

type seedTool struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	PricingType string   `json:"pricing_type"`
	Slug        string   `json:"slug"`
	ImageURL    string   `json:"image_url"`
	WebsiteURL  string   `json:"website_url"`
	Features    []string `json:"features"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load tools from a JSON file into the catalog",
	Long: `Load tools from a JSON file into the catalog.

The file holds a JSON array of tool objects. Each created tool gets an
embedding job queued automatically.

Example:
  nabd seed --file ./tools.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		var seeds []seedTool
		if err := json.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("parsing seed file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		created := 0
		for _, s := range seeds {
			resp, err := client.post(cmd.Context(), "/admin/tools", s)
			if err != nil {
				return err
			}
			var result map[string]any
			if err := decodeJSON(resp, &result); err != nil {
				printError("seeding %q failed: %v", s.Title, err)
				continue
			}
			created++
		}

		printSuccess("Seeded %d/%d tools", created, len(seeds))
		return nil
	},
}

// --- checklinks ---

var checkLinksCmd = &cobra.Command{
	Use:   "checklinks",
	Short: "Probe every tool's website URL and report dead links",
	Long: `Probe every tool's website URL and report dead links.

Runs against the local database directly, so the server does not need to
be running. Without --apply this is a dry run: nothing gets deleted.

Examples:
  nabd checklinks
  nabd checklinks --apply --concurrency 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		retries, _ := cmd.Flags().GetInt("retries")

		return runCheckLinks(cmd.Context(), apply, linkcheck.Options{
			Timeout:     timeout,
			Concurrency: concurrency,
			Retries:     retries,
		})
	},
}

func runCheckLinks(ctx context.Context, apply bool, opts linkcheck.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	var all []storage.Tool
	for offset := 0; ; offset += 500 {
		batch, err := store.ListTools(500, offset)
		if err != nil {
			return fmt.Errorf("listing tools: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	printStep("Checking %d URLs...", len(all))
	checker := linkcheck.New(opts, logger)
	report, err := checker.CheckAll(ctx, all)
	if err != nil {
		return err
	}

	printStatus("Checked", "%d", report.Checked)
	printStatus("Alive", "%d", report.Alive)
	printStatus("Dead", "%d", len(report.Dead))
	printStatus("Confirmed dead", "%d", report.ConfirmedDead)
	printStatus("Uncertain dead", "%d", report.UncertainDead)
	for reason, n := range report.DeadByReason {
		printStatus("  "+reason, "%d", n)
	}

	if !apply {
		printWarning("Dry run: nothing deleted. Re-run with --apply to remove confirmed-dead tools.")
		return nil
	}

	backupPath, err := writeDeadLinkBackup(cfg.Storage.DataDir, report)
	if err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	if backupPath != "" {
		printStep("Backup written to %s", backupPath)
	}

	cleanup := linkcheck.Cleanup{
		Store:   store,
		Vectors: retrieval.NewVectorStore(store.DB()),
		Logger:  logger,
	}
	deleted, err := cleanup.Apply(report)
	if err != nil {
		printError("cleanup finished with errors: %v", err)
	}
	printSuccess("Deleted %d confirmed-dead tools", deleted)
	return err
}

// writeDeadLinkBackup saves the tools about to be deleted so a bad sweep can
// be restored by re-seeding the file. Returns "" when there is nothing to back up.
func writeDeadLinkBackup(dataDir string, report linkcheck.Report) (string, error) {
	var doomed []linkcheck.Result
	for _, r := range report.Dead {
		if r.ConfirmedDead {
			doomed = append(doomed, r)
		}
	}
	if len(doomed) == 0 {
		return "", nil
	}

	data, err := json.MarshalIndent(doomed, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dataDir, fmt.Sprintf("dead-links-backup-%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask the assistant a question from the terminal",
	Long: `Ask the assistant a question from the terminal.

Talks to the running server's chat endpoint. The token flag is the user
session token; any value works when no auth service is configured.

Example:
  nabd chat "أريد أداة لتوليد الصور" --agent general`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentSlug, _ := cmd.Flags().GetString("agent")
		token, _ := cmd.Flags().GetString("token")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		body, err := json.Marshal(map[string]any{
			"query":     args[0],
			"agentSlug": agentSlug,
		})
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://127.0.0.1:%d/agent/chat", cfg.Server.Port)
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Timeout: 90 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable, is nabd running? (%w)", err)
		}

		var result struct {
			Reply string `json:"reply"`
			Error string `json:"error"`
			Agent struct {
				Name  string `json:"name"`
				Emoji string `json:"emoji"`
			} `json:"agent"`
			ToolsExecuted []struct {
				Name       string `json:"name"`
				Success    bool   `json:"success"`
				ItemsFound int    `json:"itemsFound"`
			} `json:"toolsExecuted"`
			ExecutionTime int64 `json:"executionTime"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}

		fmt.Fprintf(os.Stdout, "%s %s\n\n%s\n", result.Agent.Emoji, result.Agent.Name, result.Reply)
		for _, t := range result.ToolsExecuted {
			mark := "✓"
			if !t.Success {
				mark = "✗"
			}
			printStatus(t.Name, "%s (%d items)", mark, t.ItemsFound)
		}
		printStatus("Took", "%dms", result.ExecutionTime)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nabd configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			printStatus(info.Key, "%s (env: %s)", info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			printError("%v", err)
			fmt.Fprintf(os.Stderr, "valid keys: %v\n", config.ValidKeys())
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "path to a JSON file of tools")

	checkLinksCmd.Flags().Bool("apply", false, "delete confirmed-dead tools (default is dry run)")
	checkLinksCmd.Flags().Duration("timeout", 12*time.Second, "per-request timeout")
	checkLinksCmd.Flags().Int("concurrency", 24, "number of concurrent probes")
	checkLinksCmd.Flags().Int("retries", 1, "retries for transient failures")

	chatCmd.Flags().String("agent", "general", "persona slug to chat with")
	chatCmd.Flags().String("token", "dev", "user session token")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
