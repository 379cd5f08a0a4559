package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/proxy"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a TOML config file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	upstreamURL := flag.String("upstream", "", "Upstream chat completions URL (overrides config)")
	origins := flag.String("origins", "", "Comma-separated allowed browser origins (overrides config)")
	watch := flag.Bool("watch", false, "Reload allowed origins when the config file changes")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			bootstrap := logger.NewLogger(*debug)
			bootstrap.Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()

	if *listenAddr != "" {
		cfg.Proxy.ListenAddr = *listenAddr
	}
	if *upstreamURL != "" {
		cfg.Proxy.UpstreamURL = *upstreamURL
	}
	if *origins != "" {
		cfg.Proxy.AllowedOrigins = splitOrigins(*origins)
	}
	if *debug {
		cfg.Debug = true
	}

	// Set up logger
	logger := logger.NewLogger(cfg.Debug)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("studio proxy starting",
		zap.String("listen", cfg.Proxy.ListenAddr),
		zap.String("upstream", cfg.Proxy.UpstreamURL),
		zap.Strings("allowed_origins", cfg.Proxy.AllowedOrigins),
		zap.Bool("debug", cfg.Debug),
	)

	p, err := proxy.New(proxy.Config{
		ListenAddr:         cfg.Proxy.ListenAddr,
		UpstreamURL:        cfg.Proxy.UpstreamURL,
		AllowedOrigins:     cfg.Proxy.AllowedOrigins,
		APIKeyEnv:          cfg.Proxy.APIKeyEnv,
		DefaultModel:       cfg.Proxy.DefaultModel,
		DefaultTemperature: cfg.Proxy.DefaultTemperature,
		Timeout:            cfg.Proxy.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to create proxy", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		if *configPath == "" {
			logger.Fatal("-watch requires -config")
		}
		go func() {
			err := p.WatchOrigins(ctx, *configPath, func() ([]string, error) {
				reloaded, err := config.Load(*configPath)
				if err != nil {
					return nil, err
				}
				return reloaded.Proxy.AllowedOrigins, nil
			})
			if err != nil {
				logger.Error("origin watcher stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if err := p.Run(); err != nil {
		logger.Fatal("proxy server failed", zap.Error(err))
	}
	logger.Info("studio proxy stopped")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
