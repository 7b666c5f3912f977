package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nabdhq/nabd/internal/agent"
	"github.com/nabdhq/nabd/internal/api"
	"github.com/nabdhq/nabd/internal/backfill"
	"github.com/nabdhq/nabd/internal/brain"
	"github.com/nabdhq/nabd/internal/config"
	"github.com/nabdhq/nabd/internal/gemini"
	"github.com/nabdhq/nabd/internal/identity"
	"github.com/nabdhq/nabd/internal/ratelimit"
	"github.com/nabdhq/nabd/internal/retrieval"
	"github.com/nabdhq/nabd/internal/storage"
	"github.com/nabdhq/nabd/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nabd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running nabd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nabd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "nabd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "nabd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/admin/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("nabd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("nabd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	geminiClient, err := gemini.New(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	// Build the conversation pipeline.
	embedder := retrieval.NewEmbedder(geminiClient, cfg.Gemini.EmbedModel)
	vectorStore := retrieval.NewVectorStore(store.DB())
	executor := tools.NewExecutor(store, embedder, vectorStore, logger)
	orchestrator := brain.NewOrchestrator(geminiClient, executor, cfg.Gemini.ChatModel, logger)
	personas := agent.NewLoader(store, logger)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)

	var verifier identity.Verifier
	if cfg.Auth.BaseURL != "" {
		verifier = identity.NewHTTPVerifier(cfg.Auth.BaseURL, cfg.Auth.AnonKey)
	} else {
		slog.Warn("no auth service configured, accepting any bearer token")
		verifier = identity.StaticVerifier{}
	}

	adminToken := cfg.Server.AdminToken
	if adminToken == "" {
		adminToken = uuid.New().String()
		slog.Warn("no admin token configured, generated an ephemeral one", "token", adminToken)
	}

	chatHandler := api.NewChatHandler(api.ChatDeps{
		Verifier: verifier,
		Limiter:  limiter,
		Personas: personas,
		Brain:    orchestrator,
	})
	adminHandler := api.NewAdminHandler(api.AdminDeps{
		Store:   store,
		Token:   adminToken,
		Vectors: vectorStore,
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/", chatHandler)
	topRouter.Mount("/admin", adminHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// Start embedding worker.
	worker := backfill.NewWorker(store, embedder, vectorStore, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Runner: executor})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "nabd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("nabd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop nabd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to nabd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/admin/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Chat model", "%s", cfg.Gemini.ChatModel)
	printStatus("Embed model", "%s", cfg.Gemini.EmbedModel)
	if cfg.Auth.BaseURL != "" {
		printStatus("Auth service", "%s", cfg.Auth.BaseURL)
	} else {
		printStatus("Auth service", "none (development mode)")
	}
	printStatus("Rate limit", "%d requests / %ds", cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSeconds)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
