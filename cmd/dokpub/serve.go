package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"dokpub/internal/history"
	"dokpub/internal/project"
	"dokpub/internal/server"
	"dokpub/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook relay server",
	Long: `Start the HTTP server that receives GitHub push webhooks and relays
them as Dokploy deploy triggers.

Each configured project names a webhook secret, a target branch, and the
Dokploy trigger transport to fire when that branch is pushed.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("DOKPUB_CONFIG_FILE", ""), "Path to projects.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("DOKPUB_LOG_FILE", "./triggers.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("DOKPUB_DB_PATH", "./triggers.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("DOKPUB_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("DOKPUB_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("DOKPUB_SKIP_VALIDATION") == "1", "Enable test mode (skip rate limits and history)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Determine config file path
	if configFile == "" {
		// Search in default locations using pkg/fileutil
		searchPaths := fileutil.DefaultConfigPaths("projects.yaml")
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting dokpub relay")

	// Load configuration
	logger.Info("Loading configuration", "config", configFile)
	_, projects, err := project.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration validated successfully", "count", len(projects))

	// Warn if no projects are configured
	if len(projects) == 0 {
		logger.Warn("No projects configured in config file", "config", configFile)
		logger.Warn("The server will start but won't relay any triggers until projects are added")
	}

	// Create project registry
	registry := project.NewRegistry(projects)

	// Initialize history database
	var hist *history.History
	if !testMode {
		logger.Info("Initializing history database", "db", dbPath)
		hist, err = history.New(dbPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	// Create and start server
	srv := server.NewServer(registry, hist, logger, testMode)

	logger.Info("Starting HTTP server", "host", host, "port", port)
	if err := srv.Start(host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}
