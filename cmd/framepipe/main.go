// Command framepipe plays a raw video clip through a three-stage pipeline:
// frames are read, converted to grayscale and displayed, with every stage
// running concurrently behind bounded buffers.
//
//	framepipe                         # run with config.yml / .env / env vars
//	framepipe -config clip.yml        # explicit config file
//	framepipe -generate clip.raw      # write a synthetic clip for source.kind=raw
//	framepipe -version
//
// Typing the quit key (sink.quit_key, then Enter) stops playback early.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/framepipe/bootstrap"
	"github.com/kbukum/framepipe/config"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/version"
)

const serviceName = "framepipe"

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFile := fs.String("config", "", "path to config.yml")
	envFile := fs.String("env", "", "path to a .env file")
	generate := fs.String("generate", "", "write a synthetic raw clip to this path and exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *showVersion {
		fmt.Println(serviceName, version.GetFullVersion())
		return exitOK
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	var cfg AppConfig
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	if *generate != "" {
		cfg.ApplyDefaults()
		n, err := generateClip(*generate, cfg.Source)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailed
		}
		fmt.Printf("wrote %d frames (%dx%dx%d) to %s\n", n, cfg.Source.Width, cfg.Source.Height, cfg.Source.Channels, *generate)
		return exitOK
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	r, err := newRunner(app, os.Stdin)
	if err != nil {
		app.Logger.Error("wiring failed", logger.ErrorFields("wire", err))
		return exitFailed
	}

	var report *pipeline.Report
	err = app.RunTask(context.Background(), func(ctx context.Context) error {
		var runErr error
		report, runErr = r.run(ctx)
		return runErr
	})
	return exitCode(report, err)
}

func exitCode(report *pipeline.Report, err error) int {
	switch {
	case report != nil && report.Outcome == pipeline.OutcomeCancelled:
		return exitCancelled
	case errors.CodeOf(err) == errors.ErrCodeCancelled:
		return exitCancelled
	case err != nil:
		logger.Error("framepipe failed", logger.ErrorFields("run", err))
		return exitFailed
	default:
		return exitOK
	}
}

// generateClip writes cfg.Count synthetic frames of cfg's geometry as a raw clip.
func generateClip(path string, cfg frame.SourceConfig) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.IOError(path, err)
	}
	w := bufio.NewWriter(f)
	for seq := 1; seq <= cfg.Count; seq++ {
		if err := frame.WriteRaw(w, frame.Generate(seq, cfg.Width, cfg.Height, cfg.Channels)); err != nil {
			f.Close()
			return seq - 1, errors.IOError(path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, errors.IOError(path, err)
	}
	if err := f.Close(); err != nil {
		return 0, errors.IOError(path, err)
	}
	return cfg.Count, nil
}
