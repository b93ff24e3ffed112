// Command playdard is the Playdar resolver daemon entrypoint: flag
// parsing, config load, platform handle construction, resolver
// registration, HTTP server start, and signal-driven graceful shutdown.
//
// Grounded on original_source/src/main.cpp's control flow (find_config_dir,
// curl-style startup banner, SIGINT/SIGHUP handling), replacing its global
// MyApplication pointer with the explicit *platform.Handle per spec §9.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/playdar/playdar/internal/config"
	"github.com/playdar/playdar/internal/httpapi"
	"github.com/playdar/playdar/internal/lan"
	"github.com/playdar/playdar/internal/pipeline"
	"github.com/playdar/playdar/internal/platform"
	"github.com/playdar/playdar/internal/registry"
	"github.com/playdar/playdar/internal/stream"
	"github.com/playdar/playdar/resolver"
)

// version is the daemon's build version, printed by -v/--version (spec
// §6). Set at release time; "dev" is the unreleased-build default.
const version = "dev"

// reaperInterval is how often the query registry reaper scans for expired
// records (spec §4.B). Not presently a config key.
const reaperInterval = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cli.ShowHelp {
		flag.CommandLine.SetOutput(os.Stdout)
		fmt.Println("playdard [-c|--config <dir>] [-v|--version] [-h|--help]")
		return 0
	}
	if cli.ShowVersion {
		fmt.Println("playdard " + version)
		return 0
	}

	configDir := cli.ConfigDir
	if configDir == "" {
		dir, err := config.FindConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		configDir = dir
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := platform.NewLogger(false)
	log.Info().Str("version", version).Str("name", cfg.Name).
		Str("config_dir", configDir).Int("http_port", cfg.HTTPPort).
		Msg("playdard starting")

	reg := registry.New(cfg.SolveThreshold(), log)
	dispatcher := pipeline.New(reg, pipeline.DefaultRedirectTimeout, log)
	handle := platform.New(cfg, reg, dispatcher, log)

	endpoints := make([]lan.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, lan.Endpoint{Host: ep.Host, Port: ep.Port})
	}
	lanResolver := lan.New(lan.Options{
		ListenPort:     cfg.ListenPort,
		MulticastGroup: cfg.ListenIP,
		Endpoints:      endpoints,
		NumCopies:      cfg.NumCopies,
	}, log)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	defer stopSignals()

	candidates := []resolver.Resolver{lanResolver}
	var live []resolver.Resolver
	var httpResolvers []resolver.HTTPHandler
	for _, r := range candidates {
		if !r.Init(ctx, handle) {
			log.Warn().Str("resolver", r.Descriptor().Name).Msg("resolver init failed, excluding from pipeline")
			continue
		}
		live = append(live, r)
		if hh, ok := r.(resolver.HTTPHandler); ok {
			httpResolvers = append(httpResolvers, hh)
		}
	}
	dispatcher.SetResolvers(live)

	locator := stream.New(reg, nil, log)
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.HTTPPort))
	server := httpapi.New(addr, reg, handle, locator, httpResolvers, log)

	go reg.RunReaper(ctx, reaperInterval, time.Duration(cfg.QueryTTLMinutes())*time.Minute)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server error")
	}

	handle.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	lanResolver.Shutdown()

	log.Info().Msg("playdard stopped")
	return 0
}
