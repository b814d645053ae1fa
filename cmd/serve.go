package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nanda8994/MCPD365Server/internal/entra"
	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
	"github.com/Nanda8994/MCPD365Server/internal/resources"
	"github.com/Nanda8994/MCPD365Server/internal/server"
	"github.com/Nanda8994/MCPD365Server/internal/tools/d365_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		transport      string
		httpAddr       string
		yolo           bool
		sessionTimeout time.Duration
		// Dynamics 365 connection settings
		resourceURL string
		tenantID    string
		clientID    string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server to provide Dynamics 365
data entity tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport with per-session handlers

Safety Mode:
  By default, the server operates in read-only mode, providing only safe operations.
  Use --yolo to enable write operations (record creation, updates, deletes, actions).

Dynamics 365 Configuration:
  Credentials are read from the environment:
    D365_TENANT_ID, D365_CLIENT_ID, D365_CLIENT_SECRET, D365_RESOURCE_URL
  The non-secret values can also be set via --tenant-id, --client-id and
  --resource-url flags, which take precedence over the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := entra.ConfigFromEnv()
			if resourceURL != "" {
				cfg.Resource = resourceURL
			}
			if tenantID != "" {
				cfg.TenantID = tenantID
			}
			if clientID != "" {
				cfg.ClientID = clientID
			}

			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}

			return runServe(transport, debugMode, httpAddr, yolo, sessionTimeout, cfg, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (record creation, updates, deletes, actions). Default is read-only mode.")
	cmd.Flags().DurationVar(&sessionTimeout, "session-timeout", server.DefaultSessionTimeout, "Idle timeout after which HTTP sessions are removed")
	cmd.Flags().StringVar(&resourceURL, "resource-url", "", "Dynamics 365 environment base URL. Can also use D365_RESOURCE_URL env var.")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Entra ID tenant identifier. Can also use D365_TENANT_ID env var.")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Entra ID application (client) identifier. Can also use D365_CLIENT_ID env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(transport string, debugMode bool, httpAddr string, yolo bool, sessionTimeout time.Duration, cfg entra.Config, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setupLogging(transport, debugMode)

	// Load metrics config from environment if not set via flags
	if !metricsConfig.Enabled {
		if os.Getenv("METRICS_ENABLED") == "true" {
			metricsConfig.Enabled = true
		}
	}
	if metricsConfig.Addr == "" || metricsConfig.Addr == server.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsConfig.Addr = addr
		}
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			if transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Missing credentials are not fatal here: health endpoints report them and
	// tool calls surface an actionable configuration error.
	if err := cfg.Validate(); err != nil {
		if transport != "stdio" {
			log.Printf("Warning: incomplete Dynamics 365 configuration: %v", err)
		}
	}

	// Create server context
	serverContext := server.NewServerContext(shutdownCtx, cfg)

	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging))
	}
	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			if transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	// readOnly is the inverse of yolo
	readOnly := !yolo

	// Log the mode for visibility (only for non-stdio transports)
	if transport != "stdio" {
		if readOnly {
			log.Println("Starting server in READ-ONLY mode (use --yolo to enable write operations)")
		} else {
			log.Println("Starting server with WRITE operations enabled (--yolo flag is set)")
		}
	}

	// Registration only fails on programming errors, so validate once up front
	// before any transport starts accepting clients.
	mcpSrv, err := buildMCPServer(serverContext, readOnly)
	if err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		fmt.Printf("Starting mcpd365 MCP server with %s transport...\n", transport)
		return runStreamableHTTPServer(serverContext, httpAddr, shutdownCtx, sessionTimeout, readOnly, provider)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// setupLogging configures the default slog logger. For stdio transport logs
// go to stderr so they never interleave with the protocol stream.
func setupLogging(transport string, debugMode bool) {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if transport == "stdio" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// buildMCPServer creates an MCP server instance with all tools and resources
// registered. Each HTTP session gets its own instance from this function.
func buildMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("mcpd365", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return nil, err
	}

	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Dynamics 365",
			register: func() error {
				return d365_tools.RegisterD365Tools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Entity Resources",
			register: func() error {
				return resources.RegisterEntityResources(mcpSrv, ctx)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

func runStreamableHTTPServer(sc *server.ServerContext, addr string, ctx context.Context, sessionTimeout time.Duration, readOnly bool, provider *instrumentation.Provider) error {
	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	// Each session gets a dedicated MCP server so per-session protocol state
	// never leaks between clients.
	factory := func() server.SessionHandler {
		mcpSrv, err := buildMCPServer(sc, readOnly)
		if err != nil {
			// Registration was validated at startup; this is unreachable
			// unless a registration becomes stateful.
			log.Printf("Error building session handler: %v", err)
			return mcpserver.NewMCPServer("mcpd365", version)
		}
		return mcpSrv
	}

	registry := server.NewSessionRegistry(factory,
		server.WithSessionTimeout(sessionTimeout),
		server.WithRegistryLogger(slog.Default()),
		server.WithRegistryMetrics(metrics),
	)
	defer registry.Stop()

	health := server.NewHealthChecker(sc)
	health.SetSessionCount(registry.Count)

	httpServer := server.NewStreamableServer(registry,
		server.WithTransportLogger(slog.Default()),
		server.WithTransportMetrics(metrics),
		server.WithHealthChecker(health),
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("Shutting down MCP server...")
		health.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	}
}
