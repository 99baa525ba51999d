// Package main is the rulebook CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/rulebook/internal/cli"
	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/server"
	"github.com/hyperjump/rulebook/internal/watcher"
	"github.com/hyperjump/rulebook/pkg/utils"
	urfave "github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/rulebook/config.yaml"

// loadConfig loads config from path. When path is the default and ./config.yaml exists, that file
// is used instead so commands run from a project directory pick up its config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:    "rulebook",
		Usage:   "Index regulatory rulebooks and answer questions routed by volume",
		Version: version,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path",
				Value:   defaultConfigPath,
			},
			&urfave.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*urfave.Command{
			{
				Name:   "server",
				Usage:  "Start the HTTP server",
				Action: serverCommand,
			},
			{
				Name:   "build",
				Usage:  "Build an index from the data directory",
				Action: buildCommand,
				Flags: []urfave.Flag{
					kindFlag("index kind to build: hierarchical, traditional or all", "all"),
					formatFlag(),
				},
			},
			{
				Name:      "query",
				Usage:     "Ask a question against a built index",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []urfave.Flag{
					kindFlag("index kind to query", string(models.IndexHierarchical)),
					&urfave.IntFlag{Name: "beam-width", Aliases: []string{"b"}, Usage: "maximum volumes to select (default from config)"},
					&urfave.IntFlag{Name: "top-k", Usage: "maximum sources to return"},
					&urfave.BoolFlag{Name: "all-volumes", Usage: "skip volume selection and search the whole index"},
					&urfave.StringFlag{Name: "server", Usage: "server URL; when set the query is sent over HTTP"},
					formatFlag(),
				},
			},
			{
				Name:      "volumes",
				Usage:     "List rulebook volumes, or score them against a question",
				ArgsUsage: "[question]",
				Action:    volumesCommand,
				Flags: []urfave.Flag{
					&urfave.IntFlag{Name: "beam-width", Aliases: []string{"b"}, Usage: "maximum volumes to select (default from config)"},
					formatFlag(),
				},
			},
			{
				Name:      "init",
				Usage:     "Write a config file with default settings",
				ArgsUsage: "[path]",
				Action:    initCommand,
				Flags: []urfave.Flag{
					&urfave.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
			},
			{
				Name:   "status",
				Usage:  "Show documents and index state",
				Action: statusCommand,
				Flags:  []urfave.Flag{formatFlag()},
			},
			{
				Name:   "version",
				Usage:  "Show version",
				Action: func(c *urfave.Context) error {
					fmt.Fprintf(c.App.Writer, "rulebook version %s\n", version)
					return nil
				},
			},
		},
	}
}

func kindFlag(usage, value string) urfave.Flag {
	return &urfave.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: usage, Value: value}
}

func formatFlag() urfave.Flag {
	return &urfave.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output format: text or json", Value: "text"}
}

func outputFormat(c *urfave.Context) (cli.OutputFormat, error) {
	switch c.String("output") {
	case "", "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", c.String("output"))
}

// parseKinds expands "all" into both index kinds.
func parseKinds(s string) ([]models.IndexKind, error) {
	if s == "" || s == "all" {
		return []models.IndexKind{models.IndexHierarchical, models.IndexTraditional}, nil
	}
	kind := models.IndexKind(s)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownIndexKind, s)
	}
	return []models.IndexKind{kind}, nil
}

// buildQuery joins positional args so multi-word questions work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// setup loads config and logger for a command. Command output goes to stdout, logs to stderr.
func setup(c *urfave.Context) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	debug := cfg.Debug || c.Bool("debug")
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func serverCommand(c *urfave.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	comps, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := comps.service.LoadExisting(ctx); err != nil {
		logger.Warn("some indexes failed to load; rebuild them", zap.Error(err))
	}

	if cfg.Watch.Enabled {
		w := watcher.NewWatcher(cfg.Storage.DataDir, cfg.Index.Extensions, cfg.Watch.Kinds, comps.service,
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.NewServer(comps.service, &cfg.Server, logger, comps.registry)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func buildCommand(c *urfave.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	kinds, err := parseKinds(c.String("kind"))
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	comps, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	for _, kind := range kinds {
		report, err := comps.service.Rebuild(c.Context, kind)
		if err != nil {
			return fmt.Errorf("build %s: %w", kind, err)
		}
		if err := cli.WriteBuildReport(c.App.Writer, report, format); err != nil {
			return err
		}
	}
	return nil
}

func queryCommand(c *urfave.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	q := buildQuery(c.Args().Slice())
	if q == "" {
		return models.ErrEmptyQuery
	}
	req := &models.QueryRequest{
		Query:               q,
		Kind:                models.IndexKind(c.String("kind")),
		BeamWidth:           c.Int("beam-width"),
		TopK:                c.Int("top-k"),
		SkipVolumeSelection: c.Bool("all-volumes"),
	}

	var resp *models.QueryResponse
	if url := c.String("server"); url != "" {
		resp, err = queryViaHTTP(c.Context, url, req)
	} else {
		resp, err = queryLocal(c, req)
	}
	if err != nil {
		return err
	}
	return cli.WriteQueryResponse(c.App.Writer, resp, format)
}

func queryLocal(c *urfave.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	cfg, logger, err := setup(c)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	comps, err := newComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer comps.Close()
	if err := comps.service.LoadExisting(c.Context); err != nil {
		logger.Warn("some indexes failed to load", zap.Error(err))
	}
	return comps.service.Query(c.Context, req)
}

// queryViaHTTP posts req to a running server.
func queryViaHTTP(ctx context.Context, baseURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	u := strings.TrimSuffix(baseURL, "/") + "/api/v1/query"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var out models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func volumesCommand(c *urfave.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	selector, err := newSelector(cfg, logger, nil)
	if err != nil {
		return err
	}
	q := buildQuery(c.Args().Slice())
	if q == "" {
		return cli.WriteVolumes(c.App.Writer, selector.Volumes(), format)
	}
	beam := c.Int("beam-width")
	if beam <= 0 {
		beam = cfg.Query.BeamWidth
	}
	scored, err := selector.Select(c.Context, q, beam)
	if err != nil {
		return err
	}
	return cli.WriteScoredVolumes(c.App.Writer, scored, format)
}

func statusCommand(c *urfave.Context) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	comps, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()
	st, err := comps.service.Status()
	if err != nil {
		return err
	}
	return cli.WriteStatus(c.App.Writer, st, format)
}

func initCommand(c *urfave.Context) error {
	path := c.Args().First()
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	cfg := config.Default()
	cfg.Storage.DataDir = "./data/docs"
	cfg.Storage.HierarchicalIndexPath = "./data/indices/hierarchical"
	cfg.Storage.TraditionalIndexPath = "./data/indices/traditional"
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
