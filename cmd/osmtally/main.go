package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NERVsystems/osmtally/pkg/api"
	"github.com/NERVsystems/osmtally/pkg/config"
	"github.com/NERVsystems/osmtally/pkg/logger"
	"github.com/NERVsystems/osmtally/pkg/server"
	"github.com/NERVsystems/osmtally/pkg/version"
)

const (
	modeStdio = "stdio"
	modeHTTP  = "http"

	shutdownTimeout = 10 * time.Second
)

var (
	showVersion    bool
	debug          bool
	generateConfig string
	mode           string
	addr           string
	envFile        string
)

func init() {
	flag.BoolVar(&showVersion, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&generateConfig, "generate-config", "", "Generate a Claude Desktop Client config file at the specified path")
	flag.StringVar(&mode, "mode", modeStdio, "Serve MCP over stdio or the map API over http")
	flag.StringVar(&addr, "addr", "", "HTTP listen address, overrides HTTP_ADDR")
	flag.StringVar(&envFile, "env", ".env", "Optional .env file to read")
}

func main() {
	flag.Parse()

	log := logger.Setup(debug)

	if showVersion {
		fmt.Println(version.String())
		return
	}

	if generateConfig != "" {
		if err := generateClientConfig(generateConfig); err != nil {
			log.Error("failed to generate config", "error", err)
			os.Exit(1)
		}
		log.Info("successfully generated Claude Desktop Client config", "path", generateConfig)
		return
	}

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting osmtally",
		"version", version.BuildVersion,
		"mode", mode,
		"persistent", cfg.PostgresDSN != "",
		"redis", cfg.RedisAddr != "")

	switch mode {
	case modeStdio:
		return server.NewServer(a.ws, log).Run()
	case modeHTTP:
		handler := api.NewHandler(a.ws, api.WithLogger(log), api.WithRateLimit(cfg.RateLimitQPS))
		return serveHTTP(ctx, cfg.HTTPAddr, handler.Routes(), log)
	default:
		return fmt.Errorf("unknown mode %q: want %s or %s", mode, modeStdio, modeHTTP)
	}
}

// serveHTTP runs the API until ctx is cancelled, then drains in-flight
// requests.
func serveHTTP(ctx context.Context, listen string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// generateClientConfig creates or updates a Claude Desktop Client config file
func generateClientConfig(outputPath string) error {
	if outputPath == "" {
		return errors.New("output path must not be empty")
	}
	if filepath.Ext(outputPath) != ".json" {
		return fmt.Errorf("config file must have a .json extension: %s", outputPath)
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = os.Args[0]
	}
	absExecPath, err := filepath.Abs(execPath)
	if err != nil {
		absExecPath = execPath
	}

	serverConfig := map[string]interface{}{
		"command": absExecPath,
		"args":    []string{"-mode", modeStdio},
	}

	config := make(map[string]interface{})
	if data, err := os.ReadFile(outputPath); err == nil {
		if err := json.Unmarshal(data, &config); err != nil {
			slog.Default().Warn("existing config is not valid JSON, will create new", "error", err)
			config = make(map[string]interface{})
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing config: %w", err)
	}

	mcpServers, ok := config["mcpServers"].(map[string]interface{})
	if !ok {
		mcpServers = make(map[string]interface{})
		config["mcpServers"] = mcpServers
	}
	mcpServers["OSMTally"] = serverConfig

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
