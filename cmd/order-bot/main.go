package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/order-bot/internal/order"
	"github.com/zombor/order-bot/internal/scanning"
	"github.com/zombor/order-bot/internal/sheet"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// eventRetention is how long webhook event ids are remembered for redelivery checks
const eventRetention = 24 * time.Hour

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not read .env", "error", err)
	}

	fs := ff.NewFlagSet("order-bot")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "order-bot.db", "Database file path")
		sheetID     = fs.StringLong("sheet-id", "", "Google spreadsheet id")
		sheetName   = fs.StringLong("sheet-name", "Orders", "Worksheet holding the orders")
		credentials = fs.StringLong("google-credentials", "", "Service account JSON, inline or as a file path (default: application default credentials)")
		driveFolder = fs.StringLong("drive-folder", "", "Default upload folder id")
		blobBackend = fs.StringLong("blob-backend", "drive", "Image storage: 'drive' or 'local'")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path for the local backend")
		publicURL   = fs.StringLong("public-url", "", "Public base URL of this server (local backend links)")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		lineSecret  = fs.StringLong("line-secret", "", "LINE channel secret")
		lineToken   = fs.StringLong("line-token", "", "LINE channel access token")
		window      = fs.DurationLong("window", order.DefaultWindow, "Quiet period before a user's photos are processed")
		snapshotTTL = fs.DurationLong("snapshot-ttl", 30*time.Second, "How long a sheet read is reused by the dashboard")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ORDER_BOT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *sheetID == "" {
		slog.Error("--sheet-id is required")
		os.Exit(1)
	}
	if *credentials == "" {
		slog.Info("No Google credentials given, using application default credentials")
	}
	if *lineSecret == "" || *lineToken == "" {
		slog.Error("--line-secret and --line-token are required")
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...")
	db, err := order.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize sheet
	slog.Info("Connecting to spreadsheet...", "sheet", *sheetName)
	table, err := sheet.NewGoogleTable(ctx, *credentials, *sheetID, *sheetName)
	if err != nil {
		slog.Error("Failed to connect to spreadsheet", "error", err)
		os.Exit(1)
	}
	store := sheet.NewStore(table, *snapshotTTL)

	// Initialize scanner based on type
	var extractor scanning.Extractor
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "backend", *blobBackend)
	var blobs order.BlobStore
	switch *blobBackend {
	case "drive":
		blobs, err = order.NewDriveStorage(ctx, *credentials)
	case "local":
		base := *publicURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", *port)
		}
		blobs, err = order.NewLocalStorage(*storagePath, base)
	default:
		err = fmt.Errorf("unknown blob backend %q", *blobBackend)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	line, err := order.NewLINE(*lineToken)
	if err != nil {
		slog.Error("Failed to initialize LINE client", "error", err)
		os.Exit(1)
	}

	folders := order.NewSheetFolders(db, *sheetName, *driveFolder)

	// Initialize pipeline
	service := order.NewService(line, extractor, store, blobs, folders, line)
	batcher := order.NewBatcher(*window, service.Process)
	exporter := order.NewExporter(store, blobs, folders)
	webhook := order.NewWebhook(*lineSecret, batcher, db, line, exporter)
	dashboard := order.NewDashboard(store, blobs, folders)

	// Initialize server
	basicAuth := order.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := order.NewServer(dashboard, webhook, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	done := make(chan struct{})
	go pruneEvents(db, done)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	close(done)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	// Batches already fired finish; pending ones are dropped
	batcher.Close()
	batcher.Wait()
	webhook.Wait()
}

// pruneEvents forgets old webhook event ids once an hour
func pruneEvents(db *order.BoltDB, done <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			n, err := db.PruneEvents(now.Add(-eventRetention))
			if err != nil {
				slog.Error("Error pruning webhook events", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("Pruned webhook events", "count", n)
			}
		}
	}
}
