// Command realtime-watch subscribes to one or more realtime channels and
// prints updates and periodic health summaries. It is the library's smoke
// console: point it at a backend and watch the coordinator work.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/farmstand/realtime/config"
	"github.com/farmstand/realtime/facade"
	"github.com/farmstand/realtime/logging"
	"github.com/farmstand/realtime/manager"
	"github.com/farmstand/realtime/transport"
)

func main() {
	var (
		baseURL    = flag.String("url", "ws://localhost:8080/realtime", "websocket base URL")
		configPath = flag.String("config", "", "optional YAML config file")
		channels   = flag.String("channels", "inventory={}", "comma-separated domain=filterJSON pairs")
		logLevel   = flag.String("log-level", "info", "zap log level")
		pretty     = flag.Bool("pretty", true, "console log encoding")
		statusTick = flag.Duration("status-every", 15*time.Second, "health summary interval")
	)
	flag.Parse()

	log, err := logging.New(*logLevel, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 1. Load settings
	settings := config.Default()
	if *configPath != "" {
		settings, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("load config", zap.Error(err))
		}
	}

	// 2. Wire the transport and the manager
	ws, err := transport.NewWebSocket(transport.WebSocketConfig{
		BaseURL: *baseURL,
		Logger:  log.Named("transport"),
	})
	if err != nil {
		log.Fatal("transport", zap.Error(err))
	}
	mgr, err := manager.New(manager.Config{
		Transport: ws,
		Settings:  settings,
		Logger:    log.Named("manager"),
	})
	if err != nil {
		log.Fatal("manager", zap.Error(err))
	}
	mgr.Start()
	defer mgr.Close()

	// 3. Attach one facade per requested channel
	coord := facade.NewCoordinator()
	for _, pair := range strings.Split(*channels, ",") {
		domain, filterJSON, _ := strings.Cut(strings.TrimSpace(pair), "=")
		var filter map[string]any
		if filterJSON != "" {
			if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
				log.Fatal("parse filter", zap.String("channel", pair), zap.Error(err))
			}
		}
		f := facade.New(mgr, domain, filter)
		if err := f.Attach(); err != nil {
			log.Fatal("attach", zap.String("domain", domain), zap.Error(err))
		}
		coord.Add(f)
		go printUpdates(log, f)
	}

	// 4. Periodic health summary
	ticker := time.NewTicker(*statusTick)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			s := coord.Summary()
			log.Info("health summary",
				zap.Bool("healthy", s.Healthy),
				zap.Stringer("quality", s.Quality),
				zap.Int("enabled", s.Enabled),
				zap.Int("connected", s.Connected))
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))
}

func printUpdates(log *zap.Logger, f *facade.Facade) {
	for u := range f.Updates() {
		log.Info("update",
			zap.String("domain", f.Domain()),
			zap.Time("received", u.ReceivedAt),
			zap.ByteString("payload", u.Payload))
	}
}
