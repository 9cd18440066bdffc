package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stocky-devel/stocky/internal/api"
	"github.com/stocky-devel/stocky/internal/commlink"
	"github.com/stocky-devel/stocky/internal/config"
	"github.com/stocky-devel/stocky/internal/db"
	"github.com/stocky-devel/stocky/internal/fsutil"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/reader"
	"github.com/stocky-devel/stocky/internal/serialmux"
	"github.com/stocky-devel/stocky/internal/stock"
	"github.com/stocky-devel/stocky/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the YAML server configuration (default "+config.DefaultConfigPath+" if present)")
	devMode     = flag.Bool("dev", false, "Run in dev mode against a simulated reader")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	listen      = flag.String("listen", "", "Listen address (overrides the configuration)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// devTags are the tags the simulated reader reports in -dev mode.
var devTags = map[string]int{
	"3000E2801160600002096381F0B1": -48,
	"3000E2801160600002096381F0C2": -61,
	"3000E2801160600002096381F0D3": -70,
}

func loadConfig(fs fsutil.FileSystem) (*config.Config, error) {
	path := *configPath
	if path == "" {
		if !fs.Exists(config.DefaultConfigPath) {
			log.Printf("no configuration file, using defaults")
			return config.Defaults(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.Load(path, fs)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded configuration from %s", path)
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	cfg, err := loadConfig(fsutil.OSFileSystem{})
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	// in dev mode the reader is simulated and always present
	var factory serialmux.PortFactory = serialmux.RealPortFactory{}
	var presenceFS fsutil.FileSystem = fsutil.OSFileSystem{}
	if *devMode {
		factory = serialmux.PortOpenerFunc(func(string, serialmux.PortOptions) (serialmux.SerialPorter, error) {
			return serialmux.NewSimulatedReader(devTags), nil
		})
		mem := fsutil.NewMemoryFileSystem()
		if err := mem.WriteFile(cfg.PresenceWatchPath, nil, 0o644); err != nil {
			log.Fatalf("failed to fake device node: %v", err)
		}
		presenceFS = mem
		log.Printf("dev mode: simulating a reader at %s", cfg.DevicePath)
	}

	store, err := db.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	link := commlink.New(commlink.Options{
		Path:    cfg.DevicePath,
		Serial:  cfg.Serial,
		Factory: factory,
	})
	session := reader.NewSession(link, cfg.RadarWindow, cfg.RadarCalibration)

	srv := api.NewServer(api.Options{
		Config:  cfg,
		Link:    link,
		Session: session,
		Stock:   stock.NewCache(store, nil, cfg.RemoteInventoryURL, nil),
		Auth:    &stock.Auth{},
		DB:      store,
		FS:      presenceFS,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	log.Printf("%s serving on %s", version.String(), cfg.Listen)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: api.LoggingMiddleware(srv.ServeMux()),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if err := srv.Close(); err != nil {
		log.Printf("closing reader: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
