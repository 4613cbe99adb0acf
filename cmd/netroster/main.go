// Netroster resolves Home Assistant network-integration entities into a
// canonical per-client roster.
//
// It correlates device trackers and telemetry sensors from the
// tplink_router, tplink_deco and omada integrations, normalizes their
// wildly inconsistent attribute payloads into one row per client, and
// serves the result over a JSON API. Optionally it republishes rows to
// MQTT (with Home Assistant discovery) and exports telemetry to
// InfluxDB. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	netroster serve              Start the resolver and API server
//	netroster rows [instance]    Resolve once and print the roster
//	netroster init [dir]         Initialize a working directory with defaults
//	netroster version            Print version and build information
//	netroster -o json rows       Output rows as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nugget/netroster/internal/api"
	"github.com/nugget/netroster/internal/buildinfo"
	"github.com/nugget/netroster/internal/config"
	"github.com/nugget/netroster/internal/connwatch"
	"github.com/nugget/netroster/internal/export"
	"github.com/nugget/netroster/internal/homeassistant"
	"github.com/nugget/netroster/internal/mqtt"
	"github.com/nugget/netroster/internal/roster"
	"github.com/nugget/netroster/internal/snapshot"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the netroster command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of all servers and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "rows":
		instance := ""
		if len(cmdArgs) > 0 {
			instance = cmdArgs[0]
		}
		return runRows(ctx, stdout, stderr, configPath, outputFmt, instance)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// netroster is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Netroster - Home Assistant Network Roster Resolver")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: netroster [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve             Start the resolver and API server")
	fmt.Fprintln(w, "  rows [instance]   Resolve once and print the roster")
	fmt.Fprintln(w, "  init [dir]        Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version           Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/netroster/config.yaml, /etc/netroster/config.yaml")
	return nil
}

// connectHA builds the REST and WebSocket clients and returns a snapshot
// session. The WebSocket connect has its own timeout so a wedged HA
// install can't hang startup indefinitely.
func connectHA(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*homeassistant.Session, *homeassistant.Client, *homeassistant.WSClient, error) {
	rest := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)

	if err := rest.Ping(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("home assistant unreachable at %s: %w", cfg.HomeAssistant.URL, err)
	}

	ws := homeassistant.NewWSClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ws.Connect(connCtx); err != nil {
		// Registry access degrades but states still resolve. Keep going.
		logger.Warn("websocket connect failed, registries unavailable", "error", err)
	}

	return homeassistant.NewSession(rest, ws, logger), rest, ws, nil
}

// optionsFromConfig maps the roster config section to resolver options.
func optionsFromConfig(cfg *config.Config) roster.Options {
	return roster.Options{
		InstanceID:  cfg.Roster.InstanceID,
		Integration: roster.Integration(cfg.Roster.Integration),
		SpeedUnit:   roster.SpeedUnit(cfg.Roster.SpeedUnit),
	}
}

// runRows handles the "netroster rows" subcommand: one fetch, one
// resolution pass, print, exit. An instance argument overrides the
// configured instance scope for this pass only.
func runRows(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, outputFmt, instance string) error {
	// Logs go to stderr so the roster table stays pipeable.
	logger := newLogger(stderr, slog.LevelWarn, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	session, _, ws, err := connectHA(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	snap, err := session.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	opts := optionsFromConfig(cfg)
	if instance != "" {
		opts.InstanceID = instance
	}
	rows := roster.Resolve(snap, opts)

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return printRows(stdout, rows)
}

// printRows writes a human-readable roster table.
func printRows(w io.Writer, rows []roster.CanonicalRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tCONNECTION\tBAND\tIP\tMAC\tDOWN\tUP\tSIGNAL\tUPTIME")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.NameDisplay, r.StatusColor, r.Connection, r.Band,
			r.IP, r.MAC, r.DownSpeed, r.UpSpeed, r.Signal, r.OnlineTime)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d clients\n", len(rows))
	return nil
}

// rosterCache holds the most recent snapshot and resolved rows for the
// API. Requests for a different instance scope re-resolve from the
// cached snapshot rather than re-polling Home Assistant — resolution is
// pure and cheap, fetching is not.
type rosterCache struct {
	mu         sync.RWMutex
	snap       roster.Snapshot
	opts       roster.Options
	rows       []roster.CanonicalRow
	resolvedAt time.Time
	havePass   bool
}

func (c *rosterCache) update(snap roster.Snapshot, opts roster.Options, rows []roster.CanonicalRow, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.opts = opts
	c.rows = rows
	c.resolvedAt = at
	c.havePass = true
}

// LatestRows implements [api.RosterProvider].
func (c *rosterCache) LatestRows(ctx context.Context, instanceID string) ([]roster.CanonicalRow, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.havePass {
		return nil, time.Time{}, errors.New("no resolution pass completed yet")
	}
	if instanceID == "" || instanceID == c.opts.InstanceID {
		return c.rows, c.resolvedAt, nil
	}

	opts := c.opts
	opts.InstanceID = instanceID
	opts.Now = c.resolvedAt
	return roster.Resolve(c.snap, opts), c.resolvedAt, nil
}

// runServe handles the "netroster serve" subcommand. It is the primary
// operating mode: loads config, connects to Home Assistant, starts the
// periodic resolution loop, brings up the optional MQTT and InfluxDB
// publishers and the snapshot store, starts the API server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting netroster", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that we know the desired level. The initial
	// Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		// Already validated by config.Validate, so the error path is
		// unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level, "text")
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"integration", cfg.Roster.Integration,
		"instance", cfg.Roster.InstanceID,
		"refresh_seconds", cfg.Roster.RefreshSeconds,
		"port", cfg.API.Port,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Home Assistant ---
	session, rest, ws, err := connectHA(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	// --- Connection resilience ---
	// Background health monitoring with exponential backoff. Restores
	// the registry WebSocket whenever Home Assistant comes back.
	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()

	connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "homeassistant",
		Probe:   func(pCtx context.Context) error { return rest.Ping(pCtx) },
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: func() {
			wsCtx, wsCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer wsCancel()
			if err := ws.Reconnect(wsCtx); err != nil {
				logger.Warn("websocket reconnect failed", "error", err)
			}
		},
		Logger: logger,
	})

	// --- Snapshot store ---
	// Optional SQLite history of resolution passes, pruned on a
	// retention cap after each pass.
	var store *snapshot.Store
	if cfg.Snapshot.Path != "" {
		dbPath := cfg.Snapshot.Path
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(cfg.DataDir, dbPath)
		}
		store, err = snapshot.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open snapshot store %s: %w", dbPath, err)
		}
		defer store.Close()
		logger.Info("snapshot store opened", "path", dbPath, "keep_passes", cfg.Snapshot.KeepPasses)
	} else {
		logger.Info("snapshot store disabled (no path configured)")
	}

	// --- InfluxDB export ---
	var influx *export.Publisher
	if cfg.Influx.Enabled {
		influx, err = export.Connect(cfg.Influx, logger)
		if err != nil {
			return fmt.Errorf("connect influxdb: %w", err)
		}
		defer influx.Close()
		logger.Info("influxdb export enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	} else {
		logger.Info("influxdb export disabled")
	}

	// --- MQTT republisher ---
	// Optional: publishes HA MQTT discovery messages and per-client
	// tracker/sensor state so resolved rows appear as native HA devices.
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		logger.Info("mqtt instance ID loaded", "instance_id", instanceID)

		mqttPub = mqtt.New(cfg.MQTT, instanceID, logger)
		if err := mqttPub.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt publisher: %w", err)
		}

		// Register with connwatch for health endpoint visibility.
		pub := mqttPub
		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name: "mqtt",
			Probe: func(pCtx context.Context) error {
				awaitCtx, awaitCancel := context.WithTimeout(pCtx, 2*time.Second)
				defer awaitCancel()
				return pub.AwaitConnection(awaitCtx)
			},
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})

		logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "device_name", cfg.MQTT.DeviceName)
	} else {
		logger.Info("mqtt publishing disabled")
	}

	// --- Resolution loop ---
	cache := &rosterCache{}
	baseOpts := optionsFromConfig(cfg)
	interval := time.Duration(cfg.Roster.RefreshSeconds) * time.Second

	pass := func(ctx context.Context) {
		passCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		snap, err := session.FetchSnapshot(passCtx)
		if err != nil {
			logger.Error("snapshot fetch failed", "error", err)
			return
		}
		if snap.RegistryLoadFailed {
			// Most likely a dropped WebSocket. Reconnect for next pass;
			// this pass still resolves via the global scan.
			if err := ws.Reconnect(passCtx); err != nil {
				logger.Warn("websocket reconnect failed", "error", err)
			}
		}

		opts := baseOpts
		opts.Now = time.Now()
		rows := roster.Resolve(snap, opts)
		cache.update(snap, opts, rows, opts.Now)
		logger.Debug("resolution pass complete",
			"rows", len(rows),
			"states", len(snap.States),
			"registry_entries", len(snap.Registry),
			"registry_failed", snap.RegistryLoadFailed,
		)

		if store != nil {
			if _, err := store.RecordPass(passCtx, opts, rows); err != nil {
				logger.Error("record pass failed", "error", err)
			} else if err := store.Prune(passCtx, cfg.Snapshot.KeepPasses); err != nil {
				logger.Error("prune passes failed", "error", err)
			}
		}
		if mqttPub != nil {
			if err := mqttPub.PublishRows(passCtx, rows); err != nil {
				logger.Warn("mqtt publish failed", "error", err)
			}
		}
		if influx != nil {
			influx.PublishRows(rows, opts.Now)
		}
	}

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		pass(ctx) // first pass immediately, then on the ticker
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pass(ctx)
			}
		}
	}()

	// --- API server ---
	server := api.NewServer(cfg.API.Address, cfg.API.Port, cache, logger)
	server.SetDependencyStatus(func() map[string]api.DependencyStatus {
		status := connMgr.Status()
		result := make(map[string]api.DependencyStatus, len(status))
		for name, s := range status {
			ds := api.DependencyStatus{
				Name:      s.Name,
				Ready:     s.Ready,
				LastError: s.LastError,
			}
			if !s.LastCheck.IsZero() {
				ds.LastCheck = s.LastCheck.Format(time.RFC3339)
			}
			result[name] = ds
		}
		return result
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		_ = server.Shutdown(context.Background())
	}()

	// Start the API server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("netroster stopped")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
