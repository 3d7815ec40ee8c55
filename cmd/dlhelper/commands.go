package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/adapter/filesystem"
	"github.com/vertextoedge/dlhelper/internal/adapter/pipe"
	"github.com/vertextoedge/dlhelper/internal/adapter/sqlite"
	"github.com/vertextoedge/dlhelper/internal/config"
	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/domain/event"
	"github.com/vertextoedge/dlhelper/internal/filename"
	"github.com/vertextoedge/dlhelper/internal/logger"
	"github.com/vertextoedge/dlhelper/internal/retry"
	"github.com/vertextoedge/dlhelper/internal/service/downloader"
	"github.com/vertextoedge/dlhelper/internal/service/maintenance"
)

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "download a URL, resuming an interrupted run of the same URL",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "destination directory"},
			&cli.StringFlag{Name: "name", Usage: "destination file name"},
			&cli.StringSliceFlag{Name: "header", Aliases: []string{"H"}, Usage: "extra request header, \"Key: Value\""},
			&cli.IntFlag{Name: "retries", Usage: "retry failed attempts up to N times"},
			&cli.DurationFlag{Name: "retry-delay", Usage: "delay between retries"},
			&cli.DurationFlag{Name: "timeout", Usage: "abort an attempt after this long without data"},
			&cli.BoolFlag{Name: "override", Usage: "write over an existing file instead of renaming"},
			&cli.BoolFlag{Name: "skip-existing", Usage: "leave a complete existing file untouched"},
			&cli.StringFlag{Name: "zstd", Usage: "also write a zstd compressed copy to this path"},
			&cli.StringFlag{Name: "mirror", Usage: "also upload a copy to this bucket URL (file://, mem://)"},
			&cli.BoolFlag{Name: "no-journal", Usage: "do not record or use resume state"},
		},
		Action: runGet,
	}
}

func sizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "size",
		Usage:     "print the remote file name and size",
		ArgsUsage: "URL",
		Action: func(c *cli.Context) error {
			cfg, zl, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			rawURL := c.Args().First()
			if rawURL == "" {
				return cli.Exit("missing URL", 2)
			}
			s, err := downloader.New(rawURL, cfg.Download.DestDir, sessionOptions(cfg, zl)...)
			if err != nil {
				return err
			}

			ts, err := s.TotalSize(c.Context)
			if err != nil {
				return err
			}
			size := "unknown"
			if ts.Total >= 0 {
				size = humanize.IBytes(uint64(ts.Total))
			}
			fmt.Printf("%s\t%s\n", ts.Name, size)
			return nil
		},
	}
}

func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "list interrupted downloads recorded in the journal",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clear", Usage: "forget all recorded downloads"},
			&cli.BoolFlag{Name: "prune", Usage: "forget downloads whose file is gone or older than journal.max_age"},
			&cli.BoolFlag{Name: "remove-partial", Usage: "with --prune, also delete expired partial files"},
		},
		Action: func(c *cli.Context) error {
			cfg, zl, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := sqlite.Open(cfg.Journal.GetPath())
			if err != nil {
				return err
			}
			defer store.Close()

			if c.Bool("prune") {
				svc := maintenance.New(&maintenance.Config{
					MaxAge:        cfg.Journal.GetMaxAge(),
					RemovePartial: c.Bool("remove-partial"),
				}, store, filesystem.NewManager(), zl)
				report, err := svc.Prune(c.Context)
				if err != nil {
					return err
				}
				fmt.Printf("pruned %d of %d entries (%d missing, %d shrunk, %d expired)\n",
					report.Pruned(), report.Checked, report.Missing, report.Shrunk, report.Expired)
			}

			entries, err := store.List(c.Context)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if c.Bool("clear") {
					if err := store.Delete(c.Context, e.URL, e.DestDir); err != nil {
						return err
					}
					continue
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", e.URL, e.State.FilePath,
					sizeOf(e.State.Downloaded, e.State.Total), humanize.Time(e.UpdatedAt))
			}
			return nil
		},
	}
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, nil, err
	}
	return cfg, logger.GetZapLogger(), nil
}

// applyFlags overrides configuration values with explicitly set flags
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("out") {
		cfg.Download.DestDir = c.String("out")
	}
	if c.IsSet("name") {
		cfg.Download.FileName = c.String("name")
	}
	if c.IsSet("retries") {
		cfg.Retry.Enabled = true
		cfg.Retry.MaxRetries = c.Int("retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Retry.Delay = c.Duration("retry-delay").String()
	}
	if c.IsSet("timeout") {
		cfg.Download.Timeout = c.Duration("timeout").String()
	}
	if c.IsSet("override") {
		cfg.Download.Override = c.Bool("override")
	}
	if c.IsSet("skip-existing") {
		cfg.Download.SkipExisting = c.Bool("skip-existing")
	}
	if c.IsSet("zstd") {
		cfg.Pipes.Zstd = c.String("zstd")
	}
	if c.IsSet("mirror") {
		cfg.Pipes.MirrorBucket = c.String("mirror")
	}
	if c.Bool("no-journal") {
		cfg.Journal.Enabled = false
	}

	for _, h := range c.StringSlice("header") {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return cli.Exit(fmt.Sprintf("invalid header %q", h), 2)
		}
		if cfg.Download.Headers == nil {
			cfg.Download.Headers = make(map[string]string)
		}
		cfg.Download.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return cfg.Validate()
}

func sessionOptions(cfg *config.Config, zl *zap.Logger) []downloader.Option {
	dc := cfg.Download

	header := make(http.Header)
	for k, v := range dc.Headers {
		header.Set(k, v)
	}

	opts := []downloader.Option{
		downloader.WithLogger(zl),
		downloader.WithMethod(dc.Method),
		downloader.WithHeaders(header),
		downloader.WithTimeout(dc.GetTimeout()),
		downloader.WithForceResume(dc.ForceResume),
		downloader.WithRemoveOnStop(dc.RemoveOnStop),
		downloader.WithRemoveOnFail(dc.RemoveOnFail),
		downloader.WithProgressThrottle(dc.GetProgressThrottle()),
		downloader.WithResumeOnIncomplete(dc.ResumeOnIncomplete, dc.ResumeOnIncompleteMaxRetry),
		downloader.WithResumeIfFileExists(dc.ResumeIfFileExists),
		downloader.WithMaxRedirects(dc.MaxRedirects),
		downloader.WithFileSystem(filesystem.NewManagerWithBufferSize(dc.GetBufferSize())),
		downloader.WithOverride(downloader.OverridePolicy{
			Enabled:     dc.Override,
			Skip:        dc.SkipExisting,
			SkipSmaller: dc.SkipSmaller,
		}),
	}
	if dc.FileName != "" {
		opts = append(opts, downloader.WithFileName(filename.Literal(dc.FileName)))
	}
	if cfg.Retry.Enabled {
		opts = append(opts, downloader.WithRetry(&retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			Delay:      cfg.Retry.GetDelay(),
		}))
	}
	return opts
}

func runGet(c *cli.Context) error {
	cfg, zl, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rawURL := c.Args().First()
	if rawURL == "" {
		return cli.Exit("missing URL", 2)
	}
	if err := applyFlags(c, cfg); err != nil {
		return err
	}

	fs := filesystem.NewManagerWithBufferSize(cfg.Download.GetBufferSize())
	s, err := downloader.New(rawURL, cfg.Download.DestDir, sessionOptions(cfg, zl)...)
	if err != nil {
		return err
	}

	metrics := event.NewMetricsHandler()
	s.Subscribe(event.NewLoggingHandler(zl))
	s.Subscribe(metrics)
	s.On(event.NameProgressThrottled, func(e event.DomainEvent) {
		p := e.(event.ProgressThrottled)
		fmt.Fprintf(os.Stdout, "\r%s  %s  %s/s   ", p.Name, sizeOf(p.Downloaded, p.Total), humanize.IBytes(uint64(p.Speed)))
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal *sqlite.Store
	if cfg.Journal.Enabled {
		if journal, err = sqlite.Open(cfg.Journal.GetPath()); err != nil {
			zl.Warn("resume journal unavailable", zap.Error(err))
		} else {
			defer journal.Close()
		}
	}

	var resumeFrom *domain.ResumeState
	if journal != nil {
		st, err := journal.Get(ctx, rawURL, cfg.Download.DestDir)
		switch {
		case err == nil && st.FilePath != "" && fs.Exists(st.FilePath):
			resumeFrom = st
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			zl.Warn("failed to read resume journal", zap.Error(err))
		}
	}

	// a copy started mid-file would be truncated, so pipes only join fresh downloads
	var pipes pipeSet
	if resumeFrom == nil {
		if pipes, err = openPipes(ctx, cfg, rawURL, s); err != nil {
			return err
		}
	} else if cfg.Pipes.Zstd != "" || cfg.Pipes.MirrorBucket != "" {
		zl.Warn("resuming an earlier run, pipes disabled")
	}

	started := time.Now()
	var ok bool
	if resumeFrom != nil {
		fmt.Fprintf(os.Stdout, "resuming %s\n", resumeFrom.FilePath)
		st := *resumeFrom
		st.Downloaded = 0
		ok, err = s.ResumeFromFile(ctx, st.FilePath, &st)
	} else {
		ok, err = s.Start(ctx)
	}
	fmt.Fprintln(os.Stdout)

	if errors.Is(err, context.Canceled) {
		pipes.abort()
		st := s.ResumeState()
		if journal != nil && st.FilePath != "" {
			if jerr := journal.Save(context.Background(), rawURL, cfg.Download.DestDir, st); jerr != nil {
				zl.Error("failed to record resume state", zap.Error(jerr))
			} else {
				fmt.Fprintf(os.Stdout, "paused at %s, run again to resume\n", sizeOf(st.Downloaded, st.Total))
			}
		}
		return cli.Exit("interrupted", 130)
	}

	if journal != nil {
		if jerr := journal.Delete(context.Background(), rawURL, cfg.Download.DestDir); jerr != nil {
			zl.Warn("failed to clear resume state", zap.Error(jerr))
		}
	}
	if err != nil {
		return err
	}

	m := metrics.GetMetrics()
	stats := s.Stats()
	fmt.Fprintf(os.Stdout, "%s: %s in %s, %d retries, %d warnings\n",
		s.DownloadPath(),
		humanize.IBytes(uint64(stats.Downloaded)),
		time.Since(started).Round(time.Millisecond),
		m["retries"],
		m["warnings"],
	)
	if !ok {
		return cli.Exit("download incomplete", 1)
	}
	return nil
}

// pipeSet tracks fan-out writers so an interrupted run can discard them
type pipeSet []interface{ Abort() }

func (ps pipeSet) abort() {
	for _, p := range ps {
		p.Abort()
	}
}

type zstdAborter struct {
	*pipe.ZstdFile
}

// Abort closes the partial copy and deletes it
func (z zstdAborter) Abort() {
	z.ZstdFile.Close()
	os.Remove(z.Path())
}

func openPipes(ctx context.Context, cfg *config.Config, rawURL string, s *downloader.Session) (pipeSet, error) {
	var ps pipeSet

	if cfg.Pipes.Zstd != "" {
		z, err := pipe.NewZstdFile(cfg.Pipes.Zstd, zstd.SpeedDefault)
		if err != nil {
			return nil, err
		}
		za := zstdAborter{z}
		s.Pipe(za, &downloader.PipeOptions{End: true})
		ps = append(ps, za)
	}

	if cfg.Pipes.MirrorBucket != "" {
		key := cfg.Pipes.MirrorKey
		if key == "" {
			key = keyFor(rawURL)
		}
		m, err := pipe.OpenMirror(ctx, cfg.Pipes.MirrorBucket, key, "")
		if err != nil {
			ps.abort()
			return nil, err
		}
		s.Pipe(m, &downloader.PipeOptions{End: true})
		ps = append(ps, m)
	}
	return ps, nil
}

func keyFor(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return filename.FromURL(u)
	}
	return "download"
}

func sizeOf(downloaded, total int64) string {
	if total < 0 {
		return humanize.IBytes(uint64(downloaded))
	}
	return fmt.Sprintf("%s / %s", humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(total)))
}
