package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	mymcp "github.com/dbbridge/mysql-mcp"
	"github.com/dbbridge/mysql-mcp/internal/meta"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load environment (.env is optional) and connection parameters.
	// Credentials come only from the environment, never the config file.
	_ = godotenv.Load()
	conn, err := mymcp.LoadEnv()
	if err != nil {
		return err
	}

	// 2. Load optional server config (non-credential settings)
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 3. Setup logger. Stdout carries the stdio transport, so logs default
	// to stderr.
	logger := setupLogger(serverConfig.Logging)

	// 4. Create the engine
	var opts []mymcp.Option
	if len(serverConfig.ServerHooks.BeforeExec) > 0 || len(serverConfig.ServerHooks.AfterExec) > 0 {
		opts = append(opts, mymcp.WithServerHooks(serverConfig.ServerHooks))
	}
	m, err := mymcp.New(ctx, conn, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create MySQLMcp: %w", err)
	}
	defer m.Close(ctx)

	// 5. Test database connection
	logger.Info().Msg("testing database connection")
	if err := m.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 6. Create MCP server with initialize lifecycle logging
	srvHooks := &server.Hooks{}
	srvHooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gomymcp", meta.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithHooks(srvHooks),
	)

	mymcp.RegisterMCPTools(mcpServer, m)

	// Expose each table as a mysql://<table>/data resource. Introspection
	// failure here is not fatal — the tools still work.
	if err := mymcp.RegisterMCPResources(ctx, mcpServer, m); err != nil {
		logger.Warn().Err(err).Msg("failed to register table resources")
	}

	// 7. Serve: stdio by default, streamable HTTP when a port is configured
	if serverConfig.Server.Port <= 0 {
		logger.Info().Msg("starting gomymcp server on stdio")
		return server.ServeStdio(mcpServer)
	}
	return serveHTTP(mcpServer, serverConfig, logger)
}

func serveHTTP(mcpServer *server.MCPServer, serverConfig *mymcp.ServerConfig, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			return errors.New("health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the handler when a custom *http.Server is
	// provided, so register it here.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting gomymcp server")
	return streamableServer.Start(addr)
}

// loadServerConfig reads the optional JSON config file. A missing file is
// not an error — everything has a default; credentials always come from the
// environment.
func loadServerConfig() (*mymcp.ServerConfig, error) {
	configPath := os.Getenv("GOMYMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".gomymcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && os.Getenv("GOMYMCP_CONFIG_PATH") == "" {
			return &mymcp.ServerConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config mymcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func setupLogger(config mymcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
