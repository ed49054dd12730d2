package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mselway/bookpipe/internal/currency"
	"github.com/mselway/bookpipe/internal/document"
	"github.com/mselway/bookpipe/internal/extract"
	"github.com/mselway/bookpipe/internal/ledger"
	"github.com/mselway/bookpipe/internal/sheet"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bookpipe")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		targetCurrency = fs.StringLong("target-currency", "USD", "Base currency records are converted to")

		fbToken    = fs.StringLong("freshbooks-token", "", "FreshBooks API bearer token")
		fbBusiness = fs.StringLong("freshbooks-business-id", "", "FreshBooks business/account id")
		fbURL      = fs.StringLong("freshbooks-url", "", "FreshBooks API base URL (default production)")
		customerID = fs.IntLong("customer-id", 12345, "Default invoice customer id")

		exchangeKey = fs.StringLong("exchange-key", "", "Exchange rate API key")
		exchangeURL = fs.StringLong("exchange-url", "", "Exchange rate API base URL (default exchangerate-api.com)")

		credsPath  = fs.StringLong("google-credentials", "", "Path to a Google service account JSON key with spreadsheet write scope")
		sheetID    = fs.StringLong("sheet-id", "", "Target Google Sheet id")
		sheetRange = fs.StringLong("sheet-range", "Sheet1!A1", "Target sheet range to overwrite")

		scannerType = fs.StringLong("scanner", "gemini", "OCR backend: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama vision model name")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BOOKPIPE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize OCR backend
	var recognizer extract.Recognizer
	var err error
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini OCR backend...", "model", *geminiModel)
		recognizer, err = extract.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama OCR backend...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = extract.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	// Currency converter
	converter := currency.NewConverter(currency.Config{
		BaseURL: *exchangeURL,
		APIKey:  *exchangeKey,
	})

	// Accounting service client
	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL:    *fbURL,
		Token:      *fbToken,
		BusinessID: *fbBusiness,
	})

	// Sheets client from the service account credential blob
	creds, err := os.ReadFile(*credsPath)
	if err != nil {
		slog.Error("Failed to read Google credentials", "path", *credsPath, "error", err)
		os.Exit(1)
	}
	sheetsService, err := sheets.NewService(context.Background(),
		option.WithCredentialsJSON(creds),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		slog.Error("Failed to initialize Sheets client", "error", err)
		os.Exit(1)
	}
	exporter := sheet.NewExporter(sheetsService, *sheetID)

	service := document.NewService(recognizer, converter, ledgerClient, exporter, document.Config{
		TargetCurrency: currency.Code(strings.ToUpper(*targetCurrency)),
		SheetRange:     *sheetRange,
		InvoiceDefaults: ledger.Defaults{
			CustomerID: int64(*customerID),
			Date:       time.Now().Format("2006-01-02"),
		},
	})

	basicAuth := document.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := document.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
