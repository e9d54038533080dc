// ABOUTME: Entry point for the persception gateway server
// ABOUTME: Serves the account, session, and image generation API

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/config"
	"github.com/persception/gateway/internal/devices"
	"github.com/persception/gateway/internal/imagegen"
	"github.com/persception/gateway/internal/organizer"
	"github.com/persception/gateway/internal/store"
	"github.com/persception/gateway/internal/webapi"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __   ___ _ __ ___  ___ ___ _ __ | |_(_) ___  _ __
 | '_ \ / _ \ '__/ __|/ __/ _ \ '_ \| __| |/ _ \| '_ \
 | |_) |  __/ |  \__ \ (_|  __/ |_) | |_| | (_) | | | |
 | .__/ \___|_|  |___/\___\___| .__/ \__|_|\___/|_| |_|
 |_|                          |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: PERSCEPTION_CONFIG env var > XDG_CONFIG_HOME/persception/gateway.yaml > ~/.config/persception/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PERSCEPTION_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "persception", "gateway.yaml")
}

// getDataPath returns the path to the persception data directory.
// Priority: XDG_DATA_HOME/persception > ~/.local/share/persception
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "persception")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: persception-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:    %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Redis:       %s\n", cfg.Redis.Addr)
	if cfg.Development() {
		green.Print("    ▶ ")
		fmt.Printf("Environment: ")
		cyan.Print("development")
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting persception-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Connect eagerly so a bad redis address fails startup, not the
	// first free-tier request.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	issuer := auth.NewIssuer(
		[]byte(cfg.Auth.AccessSecret),
		[]byte(cfg.Auth.RefreshSecret),
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)

	srv := webapi.NewServer(webapi.Options{
		Store:         st,
		Issuer:        issuer,
		Devices:       devices.NewStore(redisClient),
		Generator:     imagegen.NewClient(cfg.ImageGen.BaseURL, cfg.ImageGen.APIKey, cfg.ImageGen.Engine),
		Organizer:     organizer.NewClient(cfg.Organizer.BaseURL, cfg.Organizer.APIKey, cfg.Organizer.Model),
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Development:   cfg.Development(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The API overview endpoint doubles as the health check
	url := fmt.Sprintf("http://%s/", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("persception-gateway configuration setup")
	fmt.Println("=======================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	environment := prompt(reader, "Environment (development/production)", "development")
	allowedOrigin := prompt(reader, "Allowed CORS origin", "http://localhost:3000")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Redis
	fmt.Println("\n--- Redis Configuration ---")
	redisAddr := prompt(reader, "Redis address", "localhost:6379")
	redisPassword := prompt(reader, "Redis password (leave empty for none)", "")

	// Auth secrets. Generated rather than prompted; the access and
	// refresh secrets must differ.
	accessSecret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating access secret: %w", err)
	}
	refreshSecret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating refresh secret: %w", err)
	}

	// Upstream services
	fmt.Println("\n--- Image Generation ---")
	imageBaseURL := prompt(reader, "Image API base URL", "https://api.stability.ai")
	imageAPIKey := prompt(reader, "Image API key", "${STABILITY_API_KEY}")

	fmt.Println("\n--- Chat Organizer ---")
	organizerBaseURL := prompt(reader, "Organizer API base URL", "https://api.openai.com")
	organizerAPIKey := prompt(reader, "Organizer API key", "${OPENAI_API_KEY}")
	organizerModel := prompt(reader, "Organizer model", "gpt-4o-mini")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# persception-gateway configuration\n")
	cfg.WriteString("# Generated by persception-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  environment: \"%s\"\n", environment))
	cfg.WriteString(fmt.Sprintf("  allowed_origin: \"%s\"\n", allowedOrigin))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("redis:\n")
	cfg.WriteString(fmt.Sprintf("  addr: \"%s\"\n", redisAddr))
	if redisPassword != "" {
		cfg.WriteString(fmt.Sprintf("  password: \"%s\"\n", redisPassword))
	}
	cfg.WriteString("  db: 0\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  access_secret: \"%s\"\n", accessSecret))
	cfg.WriteString(fmt.Sprintf("  refresh_secret: \"%s\"\n", refreshSecret))
	cfg.WriteString("  access_ttl: \"15m\"\n")
	cfg.WriteString("  refresh_ttl: \"168h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("imagegen:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", imageBaseURL))
	cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", imageAPIKey))
	cfg.WriteString("\n")

	cfg.WriteString("organizer:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", organizerBaseURL))
	cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", organizerAPIKey))
	cfg.WriteString(fmt.Sprintf("  model: \"%s\"\n", organizerModel))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  persception-gateway serve\n")

	return nil
}

func randomSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
