// Command compositord runs a standalone compositor instance.
//
// It opens the best available display backend (direct hardware when a
// device node is accessible, nested otherwise), brings up one output,
// and services presentation until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/backend"
	_ "github.com/gogpu/compositor/backend/native"
	"github.com/gogpu/compositor/config"
	"github.com/gogpu/compositor/output"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file, watched for changes")
		backendName = flag.String("backend", "", "display backend (default: best available)")
		connector   = flag.String("connector", "HEADLESS-1", "connector name for the initial output")
		width       = flag.Int("width", 1920, "initial mode width")
		height      = flag.Int("height", 1080, "initial mode height")
		listOnly    = flag.Bool("list-backends", false, "print available backends and exit")
	)
	flag.Parse()

	if *listOnly {
		for _, name := range backend.Available() {
			fmt.Println(name)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := []compositor.Option{
		compositor.WithConfig(cfg),
		compositor.WithLogger(logger),
	}
	if *backendName != "" {
		opts = append(opts, compositor.WithBackendName(*backendName))
	}

	c, err := compositor.New(opts...)
	if err != nil {
		log.Fatalf("Failed to start compositor: %v", err)
	}

	if *configPath != "" {
		if err := c.WatchConfig(*configPath); err != nil {
			log.Fatalf("Failed to watch config: %v", err)
		}
	}

	mode := output.Mode{
		Width:       *width,
		Height:      *height,
		RefreshRate: cfg.HeadlessRefreshRate,
	}
	var setupErr error
	c.Post(func() {
		if err := c.AddOutput(*connector, mode, cfg.DirectScanout); err != nil {
			setupErr = err
			c.Shutdown()
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		c.Shutdown()
	}()

	// Run executes the event loop on this goroutine, so setupErr is
	// settled once it returns.
	err = c.Run(context.Background())
	if setupErr != nil {
		log.Fatalf("Failed to add output %s: %v", *connector, setupErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Compositor exited: %v", err)
	}
}
