package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mazrean/splunkmcp/internal"
	"github.com/mazrean/splunkmcp/internal/closer"
	"github.com/mazrean/splunkmcp/internal/config"
	"github.com/mazrean/splunkmcp/internal/metadata"
	myhttp "github.com/mazrean/splunkmcp/internal/pkg/http"
	mylog "github.com/mazrean/splunkmcp/internal/pkg/log"
	"github.com/mazrean/splunkmcp/internal/search"
	"github.com/mazrean/splunkmcp/internal/splunk"
	"github.com/mazrean/splunkmcp/internal/translate"
	"github.com/mazrean/splunkmcp/log"
	"github.com/mazrean/splunkmcp/protocol"
)

var (
	version  = "dev"
	revision = "none"
)

const shutdownTimeout = 15 * time.Second

// CLI represents command line options and configuration file values
var CLI struct {
	config.Config `kong:"embed"`
	Dev           DevFlag `kong:"group='dev',embed,prefix='dev.'"`
}

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize default logger with info level
	logger := log.DefaultLogger

	// Load configuration
	_, err := config.Parse(&CLI, config.Version{Version: version, Revision: revision}, os.Args[1:], config.Paths()...)
	if err != nil {
		logger.Errorf("invalid configuration: %v", err)
		return 2
	}
	if err := CLI.Validate(); err != nil {
		logger.Errorf("%v", err)
		return 2
	}

	// Set log level
	level, err := mylog.ParseLevel(CLI.LogLevel)
	if err != nil {
		logger.Warnf("invalid log level: %s. ignore and use default info level instead", CLI.LogLevel)
	} else {
		logger = mylog.NewLogger(level)
	}

	if err := CLI.Dev.StartProfiling(); err != nil {
		logger.Warnf("failed to start profiling: %v", err)
	}
	defer CLI.Dev.StopProfiling()

	if CLI.Splunk.InsecureSkipVerify {
		logger.Warnf("TLS certificate verification of %s is disabled", CLI.Splunk.URL)
	}
	if CLI.Splunk.Token == "" {
		logger.Warnf("Splunk token is not specified. set SPLUNK_TOKEN or --splunk.token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	process, err := setup(ctx, logger)
	if err != nil {
		if errors.Is(err, metadata.ErrBackendUnavailable) {
			logger.Errorf("cannot reach Splunk at %s: %v", CLI.Splunk.URL, err)
		} else {
			logger.Errorf("failed to start: %v", err)
		}
		shutdown(logger)
		return 1
	}

	err = process.Run(ctx)
	shutdown(logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("unexpected error: failed to run process: %v", err)
		return 1
	}

	return 0
}

// setup builds the server and blocks until the first metadata snapshot is loaded
func setup(ctx context.Context, logger log.Logger) (*protocol.Process, error) {
	client, err := splunk.NewClient(
		logger,
		CLI.Splunk.URL,
		CLI.Splunk.Token,
		splunk.WithHTTPOptions(
			myhttp.WithInsecureSkipVerify(CLI.Splunk.InsecureSkipVerify),
			myhttp.WithRequestTimeout(CLI.Splunk.RequestTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create splunk client: %w", err)
	}
	closer.Add("splunk client", client.Close)

	store := metadata.NewStore(logger, client, metadata.WithRetries(CLI.Metadata.Retries))
	if _, err := store.Load(ctx); err != nil {
		return nil, err
	}

	if CLI.Metadata.RefreshInterval > 0 {
		go store.Watch(ctx, CLI.Metadata.RefreshInterval)
	}

	engine := search.NewEngine(
		logger,
		client,
		search.WithPollInterval(CLI.Search.PollInterval),
		search.WithMaxWait(CLI.Search.MaxWait),
		search.WithResultCount(CLI.Search.ResultCount),
	)
	closer.Add("search engine", engine.Close)

	app := internal.NewSplunkMCP(
		logger,
		store,
		translate.New(),
		engine,
		internal.WithVersion(version),
		internal.WithSearchWindow(CLI.Search.Earliest, CLI.Search.Latest),
	)

	return protocol.NewProcess(
		protocol.WithInitializeHandler(app.Initialize),
		protocol.WithListResourcesHandler(app.ListResources),
		protocol.WithReadResourceHandler(app.ReadResource),
		protocol.WithListToolsHandler(app.ListTools),
		protocol.WithCallToolHandler(app.CallTool),
		protocol.WithCloseHandler(app.Close),
		protocol.WithLogger(logger),
	), nil
}

func shutdown(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := closer.Close(ctx); err != nil {
		logger.Errorf("failed to close: %v", err)
	}
}
