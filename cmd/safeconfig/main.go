package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/safeconfig/internal/application"
	"github.com/eugenenazirov/safeconfig/internal/checker"
	"github.com/eugenenazirov/safeconfig/internal/config"
	"github.com/eugenenazirov/safeconfig/internal/logging"
	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("safeconfig", "Safe YAML configuration loader - only regexp and symbol tags are allowed")

	serveCmd := kingpinApp.Command("serve", "Run the HTTP service").Default()
	configFile := serveCmd.Flag("config", "Path to YAML configuration file").String()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	logLevel := serveCmd.Flag("log-level", "Log level (debug, info, warn, error)").String()
	maxDocumentBytes := serveCmd.Flag("max-document-bytes", "Largest document accepted by the service").Default("-1").Int64()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	checkCmd := kingpinApp.Command("check", "Load configuration files and report disallowed or malformed content")
	concurrency := checkCmd.Flag("concurrency", "Files loaded in parallel").Default("4").Int()
	printTree := checkCmd.Flag("print", "Print each loaded document as JSON").Bool()
	allowAliases := checkCmd.Flag("allow-aliases", "Expand *alias references instead of rejecting them").Bool()
	files := checkCmd.Arg("files", "YAML files to check").Required().ExistingFiles()

	switch kingpin.MustParse(kingpinApp.Parse(os.Args[1:])) {
	case checkCmd.FullCommand():
		var opts []yamlloader.Option
		if *allowAliases {
			opts = append(opts, yamlloader.WithAliases())
		}
		os.Exit(runCheck(context.Background(), os.Stdout, yamlloader.New(opts...), *files, *concurrency, *printTree))
	default:
		overrides := &config.CLIOverrides{
			ConfigFile: *configFile,
		}
		if *port != "" {
			overrides.Port = port
		}
		if *logLevel != "" {
			overrides.LogLevel = logLevel
		}
		if *maxDocumentBytes > 0 {
			overrides.MaxDocumentBytes = maxDocumentBytes
		}
		if *rateLimitRPSFlag >= 0 {
			overrides.RateLimitRPS = rateLimitRPSFlag
		}
		if *rateLimitBurstFlag >= 0 {
			overrides.RateLimitBurst = rateLimitBurstFlag
		}
		serve(overrides)
	}
}

func serve(overrides *config.CLIOverrides) {
	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// runCheck loads files and writes one line per file to out. It returns the
// process exit code: 0 when every file loaded, 1 otherwise.
func runCheck(ctx context.Context, out io.Writer, loader yamlloader.Loader, files []string, concurrency int, printTree bool) int {
	results, err := checker.Check(ctx, loader, files, concurrency)
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(out, "fail %s: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(out, "ok %s\n", r.Path)
		if printTree {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(yamlloader.Render(r.Tree)); err != nil {
				fmt.Fprintf(out, "fail %s: %v\n", r.Path, err)
				return 1
			}
		}
	}
	if err != nil || checker.Failed(results) > 0 {
		return 1
	}
	return 0
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
