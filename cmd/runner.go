package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/formatter"
	"github.com/desertthunder/karaoke/internal/repositories"
	"github.com/desertthunder/karaoke/internal/server"
	"github.com/desertthunder/karaoke/internal/services"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/desertthunder/karaoke/internal/tasks"
	"github.com/desertthunder/karaoke/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

// reloadConfig replaces the runner's config from the --config flag when the
// file exists.
func (r *Runner) reloadConfig(cmd *cli.Command) {
	path := cmd.String("config")
	if path == "" {
		return
	}
	if config, err := shared.LoadConfig(path); err == nil {
		r.config = config
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, checkCommand, statusCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Setup initializes the config file, media directories, and database schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := shared.CreateConfigFile(path); err != nil {
			return err
		}
		r.logger.Info("created config file", "path", path)
	}
	r.reloadConfig(cmd)

	if err := r.ensureDirectories(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(r.config.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	r.logger.Info("setup complete", "database", r.config.Storage.DatabasePath)
	return nil
}

// Serve starts the HTTP service and blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)
	config := r.config

	if err := r.ensureDirectories(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Storage.MaxOpenConns, config.Storage.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	if cmd.Bool("strict") {
		if err := requireTools(config); err != nil {
			return err
		}
	}

	conversions := repositories.NewConversionRepository(db)
	playlists := repositories.NewPlaylistRepository(db)

	broadcaster := tasks.NewBroadcaster()
	engine := tasks.NewConvertEngine(tasks.EngineOpts{
		Conversions: conversions,
		Fetcher:     services.NewYTDLPService(config.Tools.YTDLP, r.logger),
		Separator: services.NewDemucsService(services.DemucsOpts{
			Binary:  config.Tools.Demucs,
			Model:   config.Tools.DemucsModel,
			TempDir: config.Storage.TempDir,
			Timeout: config.Limits.SeparationTimeout(),
			Logger:  r.logger,
		}),
		Broadcaster: broadcaster,
		Logger:      r.logger,
		TempDir:     config.Storage.TempDir,
		OutputDir:   config.Storage.OutputDir,
		MaxDuration: config.Limits.MaxDurationSeconds,
	})

	api := server.NewAPI(server.APIOpts{
		Engine:      engine,
		Conversions: conversions,
		Playlists:   playlists,
		Logger:      r.logger,
		OutputDir:   config.Storage.OutputDir,
	})

	router := server.NewBasicRouter()
	router.Use(
		server.Logging(r.logger),
		server.CORS(config.Server.AllowedOrigins),
	)
	if config.Limits.ProcessRequestsPerMinute > 0 {
		limiter := rate.NewLimiter(rate.Limit(config.Limits.ProcessRequestsPerMinute/60), 2)
		router.Use(server.RateLimit(limiter, "/process"))
	}

	api.Register(router)
	router.Handler(server.NewStatusHandler(broadcaster, r.logger))

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("server running", "addr", "http://"+addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cmd.Bool("open") {
		if err := shared.OpenBrowser("http://" + addr); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCtx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

// Check reports availability of the external tools the pipeline depends on.
func (r *Runner) Check(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	statuses := services.CheckBinaries(services.DefaultRequirements(r.config.Tools.YTDLP, r.config.Tools.Demucs))

	var missing int
	for _, status := range statuses {
		if status.Available {
			r.writePlain("%-8s ok       %s\n", status.Name, status.Description)
			continue
		}
		if !status.Optional {
			missing++
		}
		r.writePlain("%-8s missing  %s (%s)\n", status.Name, status.Description, status.Detail)
	}

	if cmd.Bool("strict") && missing > 0 {
		return fmt.Errorf("%d required tool(s) missing", missing)
	}
	return nil
}

// Status launches the terminal status viewer against a running service.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	baseURL := cmd.String("url")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", r.config.Server.Host, r.config.Server.Port)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/karaoke-status.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.logger = fileLogger

	model := ui.NewStatusModel(ctx, baseURL)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running status viewer: %w", err)
	}

	return nil
}

// Export writes a playlist (or the whole conversion library) to CSV,
// Markdown, or plain text.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	db, err := shared.NewDatabase(r.config.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var data []byte
	format := cmd.String("format")

	if playlistID := cmd.Int("playlist"); playlistID > 0 {
		repo := repositories.NewPlaylistRepository(db)
		playlist, err := repo.Get(int64(playlistID))
		if err != nil {
			return err
		}
		if playlist.Songs, err = repo.Songs(playlist.ID); err != nil {
			return err
		}

		switch format {
		case "csv":
			data, err = formatter.ExportPlaylistToCSV(playlist)
		case "md", "markdown":
			data, err = formatter.ExportPlaylistToMarkdown(playlist)
		case "txt", "text":
			data, err = formatter.ExportPlaylistToText(playlist)
		default:
			return fmt.Errorf("unsupported format: %s", format)
		}
		if err != nil {
			return err
		}
	} else {
		if format != "csv" {
			return fmt.Errorf("library export supports csv only")
		}
		conversions, err := repositories.NewConversionRepository(db).List("")
		if err != nil {
			return err
		}
		if data, err = formatter.ExportConversionsToCSV(conversions); err != nil {
			return err
		}
	}

	if output := cmd.String("output"); output != "" {
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		r.logger.Info("export written", "path", output)
		return nil
	}

	_, err = r.output.Write(data)
	return err
}

// ensureDirectories creates the temp, output, and database directories.
func (r *Runner) ensureDirectories() error {
	dirs := []string{
		r.config.Storage.TempDir,
		r.config.Storage.OutputDir,
		filepath.Dir(r.config.Storage.DatabasePath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// requireTools fails when a required external binary is unavailable.
func requireTools(config *shared.Config) error {
	statuses := services.CheckBinaries(services.DefaultRequirements(config.Tools.YTDLP, config.Tools.Demucs))
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			return fmt.Errorf("required tool %s unavailable: %s", status.Name, status.Detail)
		}
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}
