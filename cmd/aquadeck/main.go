package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"aquadeck/internal/apiclient"
	"aquadeck/internal/config"
	"aquadeck/internal/datadog"
	"aquadeck/internal/journal"
	"aquadeck/internal/logging"
	"aquadeck/internal/model"
	"aquadeck/internal/notify"
	"aquadeck/internal/simulator"
	"aquadeck/internal/store"
)

func main() {
	var configPath string
	var demo bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&demo, "demo", false, "Serve a simulated backend and poll it instead of a real one")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	if err := logging.Init(cfg.ZerologLevel(), cfg.LogFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logging")
	}

	datadog.InitMetrics(datadog.Config{
		Enabled:   cfg.Datadog.Enabled,
		AgentAddr: cfg.Datadog.AgentAddr,
		Namespace: cfg.Datadog.Namespace,
		Tags:      cfg.Datadog.Tags,
	})

	serverURL := cfg.ServerURL
	var demoServer *http.Server
	if demo {
		sim := simulator.NewServer(simulator.WithLatency(150 * time.Millisecond))
		seedDemoDevices(sim)
		demoServer = &http.Server{Addr: cfg.Demo.Listen, Handler: sim.Router()}
		go func() {
			log.Info().Str("listen", cfg.Demo.Listen).Msg("Demo backend listening")
			if err := demoServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Demo backend failed")
			}
		}()
		serverURL = "http://" + cfg.Demo.Listen
	}

	client := apiclient.New(serverURL).WithUnaryTimeout(cfg.RequestTimeout)

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.JournalPath).Msg("Failed to open command journal")
	}
	defer jnl.Close()

	opts := []store.Option{store.WithJournal(jnl)}
	if cfg.Ntfy.Topic != "" {
		opts = append(opts, store.WithNotifier(notify.New(cfg.Ntfy.Topic, notify.WithBaseURL(cfg.Ntfy.BaseURL))))
	}
	st := store.New(client, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmUp(ctx, st)

	st.StartPolling(cfg.PollInterval)
	log.Info().
		Str("server", serverURL).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Aquadeck daemon started")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	st.StopPolling()

	if demoServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		demoServer.Shutdown(shutdownCtx)
		cancel()
	}
}

// warmUp performs the initial status fetch with backoff, then loads device
// configurations so the poller can start. Gives up only on shutdown.
func warmUp(ctx context.Context, st *store.Store) {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		if err := st.RefreshDevices(ctx); err == nil {
			break
		} else {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("Initial device refresh failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
	st.LoadConfigurations(ctx)
}

// seedDemoDevices populates the simulator with a plausible tank setup.
func seedDemoDevices(sim *simulator.Server) {
	sim.AddDevice(model.DeviceStatus{
		Address:    "AA:BB:CC:DD:EE:01",
		DeviceType: model.DeviceLight,
		Connected:  true,
		ModelName:  "WRGB II Pro",
		Channels:   []string{"red", "green", "blue", "white"},
	})
	sim.AddDevice(model.DeviceStatus{
		Address:    "AA:BB:CC:DD:EE:02",
		DeviceType: model.DeviceDoser,
		Connected:  true,
		ModelName:  "Dosing Pump 4CH",
		Channels:   []string{"head_0", "head_1", "head_2", "head_3"},
	})
	sim.AddDiscoverable(model.DeviceStatus{
		Address:    "AA:BB:CC:DD:EE:03",
		DeviceType: model.DeviceLight,
		ModelName:  "A II",
		Channels:   []string{"white"},
	})
}
