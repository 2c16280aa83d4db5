// Command pathpath starts the Pathpath puzzle server.
//
// Commands:
//  1. "server" (default) runs the HTTP server exposing the REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "levels validate" and "levels analyze" check level files offline
//
// Settings come from PATHPATH_* environment variables (optionally via .env);
// flags override them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/pathpath/api"
	"github.com/wricardo/pathpath/game/config"
	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
	"github.com/wricardo/pathpath/game/session"
	"github.com/wricardo/pathpath/telemetry"
	"github.com/wricardo/pathpath/transport/mcp"
	"github.com/wricardo/pathpath/transport/websocket"
	"github.com/wricardo/pathpath/validate"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Pathpath Server"
)

const cleanupInterval = time.Hour

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

// newApp builds the command tree. Root flags apply to every subcommand.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "pathpath",
		Usage:   "grid routing puzzle server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host"},
			&cli.StringFlag{Name: "level-dir", Value: "levels", Usage: "Directory containing level files"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "realtime", Value: true, Usage: "Advance running simulations on a wall-clock ticker"},
			&cli.StringFlag{Name: "otel-endpoint", Usage: "OTLP/HTTP trace collector endpoint"},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			} else {
				log.SetFlags(log.LstdFlags)
			}
			return ctx, nil
		},
		Action: serverAction,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serverAction,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  mcpAction,
			},
			{
				Name:  "levels",
				Usage: "Check level files",
				Commands: []*cli.Command{
					{
						Name:      "validate",
						Usage:     "Validate every level file in a directory",
						ArgsUsage: "[dir]",
						Action:    validateAction,
					},
					{
						Name:      "analyze",
						Usage:     "Print shortest routes and likely collisions",
						ArgsUsage: "[dir]",
						Action:    analyzeAction,
					},
				},
			},
		},
	}
}

// loadSettings reads the environment and applies flags that were set
// explicitly on the command line.
func loadSettings(cmd *cli.Command) (config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return settings, err
	}
	if cmd.IsSet("port") {
		settings.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("host") {
		settings.Host = cmd.String("host")
	}
	if cmd.IsSet("level-dir") {
		settings.LevelDir = cmd.String("level-dir")
	}
	if cmd.IsSet("realtime") {
		settings.Realtime = cmd.Bool("realtime")
	}
	if cmd.IsSet("otel-endpoint") {
		settings.OTELEndpoint = cmd.String("otel-endpoint")
	}
	return settings, settings.Validate()
}

// levelDirArg returns the first positional argument, falling back to the
// configured level directory.
func levelDirArg(cmd *cli.Command) string {
	if dir := cmd.Args().First(); dir != "" {
		return dir
	}
	if cmd.IsSet("level-dir") {
		return cmd.String("level-dir")
	}
	if dir := os.Getenv("PATHPATH_LEVEL_DIR"); dir != "" {
		return dir
	}
	return "levels"
}

// app holds the wired services shared by the server and mcp commands
type app struct {
	settings config.Settings
	service  service.GameService
	sessions *session.Manager
	watcher  *config.Watcher
	hub      *websocket.Hub
}

func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			log.Printf("Failed to close level watcher: %v", err)
		}
	}
	a.hub.Stop()
}

// initializeServices wires the level/session managers, the WebSocket hub, and
// the game service. It also starts the level watcher.
func initializeServices(ctx context.Context, settings config.Settings) (*app, error) {
	levels, err := config.NewManager(settings.LevelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create level manager: %w", err)
	}

	watcher, err := config.NewWatcher(levels)
	if err != nil {
		log.Printf("Warning: level hot reload disabled: %v", err)
		watcher = nil
	}

	hub := websocket.NewHub()
	go hub.Run()

	sessions := session.NewManager()
	gameService := service.NewGameService(sessions, levels,
		service.WithSettings(settings.Engine()),
		service.WithRealtime(settings.Realtime),
		service.WithNotifier(hub),
		service.WithContext(ctx),
	)

	return &app{
		settings: settings,
		service:  gameService,
		sessions: sessions,
		watcher:  watcher,
		hub:      hub,
	}, nil
}

// sessionCleanupRoutine periodically deletes sessions that have not been
// accessed within the retention window. Deletion goes through the service so
// running simulations are halted first.
func sessionCleanupRoutine(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := cleanupExpired(ctx, a); removed > 0 {
				log.Printf("Cleaned up %d expired sessions, %d active", removed, a.sessions.Count())
			}
		}
	}
}

func cleanupExpired(ctx context.Context, a *app) int {
	removed := 0
	for _, id := range a.sessions.Expired(a.settings.SessionExpiry) {
		if err := a.service.DeleteSession(ctx, id); err != nil {
			log.Printf("Failed to delete expired session %s: %v", id, err)
			continue
		}
		removed++
	}
	return removed
}

func setup(ctx context.Context, cmd *cli.Command) (*app, func(), error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid settings: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, settings.OTELEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	a, err := initializeServices(ctx, settings)
	if err != nil {
		shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	go sessionCleanupRoutine(ctx, a, cleanupInterval)

	cleanup := func() {
		a.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
	}
	return a, cleanup, nil
}

func serverAction(ctx context.Context, cmd *cli.Command) error {
	log.Printf("Starting %s v%s (mode: server)", AppName, Version)

	a, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	return runHTTPServer(ctx, a, ngrokOptions{
		enabled: cmd.Bool("ngrok"),
		auth:    cmd.String("ngrok-auth"),
		domain:  cmd.String("ngrok-domain"),
	})
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	log.Printf("Starting %s v%s (mode: mcp)", AppName, Version)

	a, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	return runStdioMCPWithInternalServer(ctx, a)
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	results, err := validate.Dir(levelDirArg(cmd))
	if err != nil {
		return err
	}
	if !validate.Report(cmd.Root().Writer, results) {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	dir := levelDirArg(cmd)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read level directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && engine.IsLevelFile(entry.Name()) {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no level files in %s", dir)
	}
	sort.Strings(files)

	w := cmd.Root().Writer
	for _, name := range files {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", name)
		if err := validate.WriteAnalysis(w, filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
	}
	return nil
}

// newMux combines the REST API with the /mcp endpoint served by a client
// pointed at baseURL.
func newMux(a *app, baseURL string) *http.ServeMux {
	apiServer := api.NewServer(a.service, a.hub)
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

type ngrokOptions struct {
	enabled bool
	auth    string
	domain  string
}

// runHTTPServer serves the API until ctx is cancelled. If ngrok is enabled it
// also provisions a public tunnel.
func runHTTPServer(ctx context.Context, a *app, ngrokOpts ngrokOptions) error {
	addr := a.settings.Addr()
	mainRouter := newMux(a, fmt.Sprintf("http://%s", addr))

	// WriteTimeout stays above the run endpoint's simulation limit
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if ngrokOpts.enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, mainRouter, ngrokOpts)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case runErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Server stopped")
	return runErr
}

func runNgrok(ctx context.Context, handler http.Handler, opts ngrokOptions) {
	if opts.auth == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.domain))
		log.Printf("Using custom ngrok domain: %s", opts.domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.auth))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	ngrokURL := tun.URL()
	log.Printf("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// externalAPIAvailable reports whether a Pathpath API answers health checks
// at baseURL.
func externalAPIAvailable(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCPWithInternalServer runs an MCP stdio server. It reuses an
// external API at the configured address when one answers; otherwise it
// starts an internal HTTP API on a random loopback port.
func runStdioMCPWithInternalServer(ctx context.Context, a *app) error {
	externalURL := fmt.Sprintf("http://%s", a.settings.Addr())
	log.Printf("Checking for external API server at %s...", externalURL)

	baseURL := externalURL
	if externalAPIAvailable(ctx, externalURL) {
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()
		log.Printf("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		httpServer := &http.Server{Handler: api.NewServer(a.service, a.hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", internalAddr)
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Printf("MCP stdio server ready (API at %s)", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
