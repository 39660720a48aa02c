package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bbmesh/bbmesh/internal/config"
	"github.com/bbmesh/bbmesh/internal/dispatch"
	"github.com/bbmesh/bbmesh/internal/httpapi"
	"github.com/bbmesh/bbmesh/internal/mesh"
	"github.com/bbmesh/bbmesh/internal/menu"
	"github.com/bbmesh/bbmesh/internal/nodetrack"
	"github.com/bbmesh/bbmesh/internal/observability"
	"github.com/bbmesh/bbmesh/internal/plugin"
	"github.com/bbmesh/bbmesh/internal/plugin/builtin"
	"github.com/bbmesh/bbmesh/internal/ratelimit"
	"github.com/bbmesh/bbmesh/internal/session"
)

func main() {
	configPath := flag.String("config", "config/bbmesh.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.HTTP.MetricsNamespace)

	ctx := context.Background()
	nodeStore, err := nodetrack.NewStore(ctx, cfg.NodeTrack.Driver, cfg.NodeTrack.Path, cfg.NodeTrack.DatabaseURL)
	if err != nil {
		log.Fatalf("node store init failed: %v", err)
	}
	defer nodeStore.Close()

	tree, err := menu.LoadTree(cfg.Menu.MenuFile, cfg.Menu.MaxDepth)
	if err != nil {
		log.Fatalf("menu load failed: %v", err)
	}
	nav := menu.NewNavigator(tree, cfg.Menu.BackCommands, cfg.Menu.HomeCommands, cfg.Menu.HelpCommands)

	runtime := plugin.NewRuntime(cfg.Plugins.Timeout.Std())
	if err := registerBuiltins(runtime, cfg); err != nil {
		log.Fatalf("plugin registration failed: %v", err)
	}
	// A menu entry pointing at an unregistered plugin is a config error, and
	// it surfaces now instead of as a user-facing fault.
	for _, name := range tree.PluginNames() {
		if !runtime.Has(name) {
			log.Fatalf("menu references plugin %q, which is not registered (enabled: %v)", name, runtime.Names())
		}
	}

	link := mesh.NewGatewayClient(mesh.GatewayConfig{
		URL:               cfg.Mesh.GatewayURL,
		MaxMessageLength:  cfg.Server.MaxMessageLength,
		MonitoredChannels: cfg.Mesh.MonitoredChannels,
		DirectMessageOnly: cfg.Mesh.DirectMessageOnly,
	})
	paced := mesh.NewPacedSender(link, cfg.Server.MessageSendDelay.Std())

	sessions := session.NewStore(cfg.Server.SessionTimeout.Std(), tree.Root())
	sessions.SetExpireHook(func(s session.Session) {
		metrics.ActiveSessions.Dec()
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		log.Printf("session expired for %s (%s)", s.DisplayName, s.Identity)
	})

	limiter := ratelimit.NewLimiter(cfg.Server.RateLimitCount, cfg.Server.RateLimitWindow.Std())

	var tracker *nodetrack.Tracker
	var notifier *nodetrack.Notifier
	if cfg.NodeTrack.Enabled {
		tracker = nodetrack.NewTracker(nodeStore, cfg.NodeTrack.NewNodeThreshold.Std())
		notifier = nodetrack.NewNotifier(nodeStore, paced, cfg.NodeTrack.NotificationFormat,
			cfg.NodeTrack.AdminKey, cfg.NodeTrack.KeyRegistration)
		if err := notifier.RegisterStatic(ctx, cfg.NodeTrack.AdminNodes, time.Now().UTC()); err != nil {
			log.Fatalf("admin registration failed: %v", err)
		}
	}

	dispatcher := dispatch.New(dispatch.Options{
		ServerName:       cfg.Server.Name,
		WelcomeMessage:   cfg.Server.WelcomeMessage,
		MOTD:             cfg.LoadMOTD(),
		ResponseChannels: cfg.Mesh.ResponseChannels,
		Sender:           paced,
		Sessions:         sessions,
		Limiter:          limiter,
		Nav:              nav,
		Runtime:          runtime,
		Tracker:          tracker,
		Notifier:         notifier,
		Metrics:          metrics,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	link.OnMessage(dispatcher.HandleMessage)
	if err := link.Connect(runCtx); err != nil {
		log.Fatalf("mesh connect failed: %v", err)
	}
	defer link.Close()

	paced.Start(runCtx)
	go dispatcher.Run(runCtx)

	sessions.StartJanitor(runCtx, cfg.Server.SweepInterval.Std(), func(evicted []session.Session) {
		if n := limiter.Purge(); n > 0 || len(evicted) > 0 {
			log.Printf("sweep: evicted %d sessions, purged %d limiter entries", len(evicted), n)
		}
	})

	if cfg.NodeTrack.Enabled && cfg.NodeTrack.RetentionDays > 0 {
		startNodePurge(runCtx, tracker, cfg.NodeTrack.RetentionDays)
	}

	api := httpapi.New(dispatcher, sessions, nodeStore, tracker, notifier, link, cfg.Server.Name)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.BindAddr,
		Handler: api.Router(),
	}
	go func() {
		log.Printf("ops API listening on %s", cfg.HTTP.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	log.Printf("%s up: menu root %q, %d plugins", cfg.Server.Name, tree.Root(), len(runtime.Names()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// registerBuiltins registers every enabled builtin plugin with its settings
// block from the config.
func registerBuiltins(runtime *plugin.Runtime, cfg config.Config) error {
	responders := map[string]plugin.Responder{
		"welcome":     builtin.Welcome{ServerName: cfg.Server.Name, WelcomeMessage: cfg.Server.WelcomeMessage},
		"help":        builtin.Help{ServerName: cfg.Server.Name},
		"time":        builtin.Clock{},
		"ping":        builtin.Ping{},
		"node_lookup": builtin.NodeLookup{},
	}
	interactives := map[string]plugin.Interactive{
		"calculator":   builtin.Calculator{},
		"number_guess": builtin.NumberGuess{},
	}

	for _, name := range cfg.Plugins.Enabled {
		if p, ok := responders[name]; ok {
			if err := runtime.RegisterResponder(p, cfg.PluginSettings(name)); err != nil {
				return err
			}
			continue
		}
		if p, ok := interactives[name]; ok {
			if err := runtime.RegisterInteractive(p, cfg.PluginSettings(name)); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("unknown plugin %q in plugins.enabled", name)
	}
	return nil
}

// startNodePurge deletes long-idle node records once a day.
func startNodePurge(ctx context.Context, tracker *nodetrack.Tracker, retentionDays int) {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := tracker.Purge(ctx, retention, time.Now().UTC())
				if err != nil {
					log.Printf("node purge failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("node purge removed %d idle nodes", n)
				}
			}
		}
	}()
}
