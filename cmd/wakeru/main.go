// Package main is the wakeru CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/cli"
	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/export"
	"github.com/hyperjump/wakeru/internal/extract"
	"github.com/hyperjump/wakeru/internal/keyword"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/internal/server"
	"github.com/hyperjump/wakeru/internal/session"
	"github.com/hyperjump/wakeru/internal/storage"
	"github.com/hyperjump/wakeru/internal/watcher"
	"github.com/hyperjump/wakeru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/wakeru/config.yaml"

// loadConfig loads config from path. When path is the default, ./config.yaml is preferred if
// present, and a missing default file yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys for hosted model providers may live in .env.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "extract":
		runExtract()
	case "cluster":
		runCluster()
	case "models":
		runModels()
	case "version", "--version", "-v":
		fmt.Printf("wakeru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// app is a wired session and everything it owns.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	handles *nlp.Handles
	store   storage.Store
	index   keyword.Index
	session *session.Session
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	index, err := keyword.NewMemIndex()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	handles := nlp.Open(cfg, logger)
	sess := session.New(
		extract.NewExtractor(cfg.Extract.Extensions),
		handles,
		store,
		index,
		session.WithLogger(logger),
		session.WithWorkers(cfg.Extract.Workers),
		session.WithClusterConfig(cfg.Cluster),
	)
	return &app{cfg: cfg, logger: logger, handles: handles, store: store, index: index, session: sess}, nil
}

func (a *app) Close() {
	if err := a.handles.Close(); err != nil {
		a.logger.Warn("failed to release models", zap.Error(err))
	}
	_ = a.index.Close()
	_ = a.store.Close()
}

// setup loads config and builds the logger for a subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debug := cfg.Debug || debugFlag
	cfg.Debug = debug
	logger, err := utils.NewLoggerWithFile(debug, utils.LogFile{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolved := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug))

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inbox server.InboxService
	if len(cfg.Inbox.Directories) > 0 {
		w := watcher.New(
			cfg.Inbox.Directories,
			cfg.Extract.Extensions,
			cfg.Inbox.RecursiveOrDefault(),
			session.NewInbox(ctx, a.session, logger),
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer w.Stop()
		go w.Sync()
		inbox = w
	}

	srv := server.NewServer(a.session, &cfg.Server, inbox, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// batchFlags are shared by extract and cluster.
type batchFlags struct {
	configPath *string
	debug      *bool
	output     *string
}

func addBatchFlags(fs *flag.FlagSet) batchFlags {
	return batchFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

// fileInputs turns command line paths into session inputs, keeping their order.
func fileInputs(paths []string) []session.FileInput {
	inputs := make([]session.FileInput, len(paths))
	for i, p := range paths {
		inputs[i] = session.FileInput{Filename: filepath.Base(p), Path: p}
	}
	return inputs
}

// processFiles runs one batch and exits with a readable message when it cannot.
// Files that fail are listed on stderr.
func processFiles(ctx context.Context, a *app, paths []string) *models.BatchResult {
	res, err := a.session.AddFiles(ctx, fileInputs(paths))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Processing failed: %v\n", err)
		os.Exit(1)
	}
	reportFailures(os.Stderr, res)
	return res
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	flags := addBatchFlags(fs)
	exportPath := fs.String("export", "", "write the entity table to this file (.csv, .xlsx or .json)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: wakeru extract [flags] <file>...\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var exportFormat export.Format
	if *exportPath != "" {
		if exportFormat, err = exportFormatFor(*exportPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	cfg, logger, _ := setup(*flags.configPath, *flags.debug)
	defer logger.Sync()
	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()
	res, err := a.session.AddFiles(ctx, fileInputs(fs.Args()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	docs, err := a.session.Documents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, cli.NewDocumentViews(res, docs), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputText && len(docs) > 1 {
		counts, err := a.session.LabelCounts(ctx, "")
		if err == nil {
			fmt.Println("All documents")
			_ = cli.WriteLabelCounts(os.Stdout, counts, format)
		}
	}

	if *exportPath != "" {
		rows, err := a.session.EntityRows(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
		if err := writeExport(*exportPath, rows, exportFormat); err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
	}
	if res.Failed > 0 {
		os.Exit(2)
	}
}

func runCluster() {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	flags := addBatchFlags(fs)
	maxClusters := fs.Int("max-clusters", 0, "maximum number of clusters (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: wakeru cluster [flags] <file>...\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(fs, os.Args[2:]))
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *maxClusters < 0 {
		fmt.Fprintln(os.Stderr, "max-clusters must not be negative")
		os.Exit(1)
	}

	cfg, logger, _ := setup(*flags.configPath, *flags.debug)
	defer logger.Sync()
	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()
	res := processFiles(ctx, a, fs.Args())
	report, err := a.session.Cluster(ctx, *maxClusters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteClusterReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if res.Failed > 0 {
		os.Exit(2)
	}
}

func runModels() {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	handles := nlp.Open(cfg, logger)
	defer handles.Close()
	if err := cli.WriteModelStatus(os.Stdout, handles.Status(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// reorderArgs moves flags (and their values) ahead of the file arguments so flag.Parse sees
// them, keeping the relative order of both. Everything after "--" is a file.
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	flags := make([]string, 0, len(args))
	var files, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			rest = args[i:]
			break
		}
		if len(a) < 2 || a[0] != '-' {
			files = append(files, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if takesValue(fs, name) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if rest != nil {
		flags = append(flags, "--")
		rest = rest[1:]
	}
	return append(append(flags, files...), rest...)
}

func takesValue(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
		return false
	}
	return true
}

// reportFailures writes one line per file that could not be added and returns how many.
func reportFailures(w io.Writer, res *models.BatchResult) int {
	for _, d := range res.Documents {
		if d.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", d.Filename, d.Error)
		}
	}
	return res.Failed
}

// exportFormatFor picks the export format from the file extension.
func exportFormatFor(path string) (export.Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("export file %q has no extension (want .csv, .xlsx or .json)", path)
	}
	return export.ParseFormat(ext)
}

func writeExport(path string, rows []models.EntityRow, format export.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteEntities(f, rows, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printUsage() {
	fmt.Println(`wakeru - Named-entity extraction and clustering for document batches

Usage:
  wakeru server [flags]              Start the HTTP server (and inbox watcher)
  wakeru extract [flags] <file>...   Extract and tag entities from documents
  wakeru cluster [flags] <file>...   Group documents by content similarity
  wakeru models [flags]              Show which models load
  wakeru version                     Show version
  wakeru help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/wakeru/config.yaml)
  --debug            Enable debug logging

Extract Flags:
  --output string    Output format: text or json (default: text)
  --export string    Write the entity table to a .csv, .xlsx or .json file

Cluster Flags:
  --output string      Output format: text or json (default: text)
  --max-clusters int   Maximum number of clusters (default from config)

Examples:
  wakeru server
  wakeru extract report.pdf minutes.pdf
  wakeru extract --export entities.xlsx *.pdf
  wakeru cluster --max-clusters 3 *.pdf
  wakeru models --output json`)
}
