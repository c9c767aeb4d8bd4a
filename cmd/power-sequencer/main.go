// Command power-sequencer switches a host computer's supply from the vehicle
// ignition rail and the host's own heartbeat, and reports state changes to MQTT.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sweeney/power-sequencer/internal/config"
	"github.com/sweeney/power-sequencer/internal/gpio"
	"github.com/sweeney/power-sequencer/internal/logic"
	"github.com/sweeney/power-sequencer/internal/metrics"
	"github.com/sweeney/power-sequencer/internal/mqtt"
	"github.com/sweeney/power-sequencer/internal/status"
	"github.com/sweeney/power-sequencer/internal/systemd"
	"github.com/sweeney/power-sequencer/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var printState bool

	cmd := &cobra.Command{
		Use:   "power-sequencer",
		Short: "Vehicle host power sequencer",
		Long: `power-sequencer keeps a host computer powered while the vehicle ignition
is on, tells the host when ignition goes away, and cuts the host's supply
once the host drops its heartbeat line.

Settings come from flags, then POWER_SEQUENCER_* environment variables,
then the TOML file given by --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cfg, printState)
		},
	}

	cfg.BindFlags(cmd.Flags())
	cmd.Flags().BoolVar(&printState, "print-state", false, "Print current input levels and exit")
	return cmd
}

func run(cfg config.Config, printState bool) error {
	start := time.Now()
	seq := logic.NewSequencer(logic.Config{
		BlinkHalfPeriod: cfg.BlinkHalfPeriod(),
		BlinkAtBoot:     cfg.BlinkAtBoot,
	}, start)

	// Outputs are requested at the boot levels, so power-enable is asserted
	// as soon as the lines are ours.
	out := seq.Outputs()
	io, err := gpio.NewRealIO(cfg.Chip, cfg.Pins, gpio.Levels{
		PowerEnable: out.PowerEnable,
		HostNotify:  out.HostNotify,
		LED:         out.LED,
	})
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer io.Close()

	if printState {
		switched, heartbeat, err := io.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("SWITCHED: %s, HEARTBEAT: %s\n", presence(switched), logic.LevelOf(heartbeat))
		return nil
	}

	publisher := mqtt.Discard
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.Broker)
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	tracker := status.NewTracker(start, status.Config{
		Chip:           cfg.Chip,
		TickMs:         cfg.Tick.Milliseconds(),
		BlinkMs:        cfg.Blink.Milliseconds(),
		ReportMs:       cfg.Report.Milliseconds(),
		BlinkAtBoot:    cfg.BlinkAtBoot,
		EvaluateAtBoot: cfg.EvaluateAtBoot,
		Broker:         cfg.Broker,
		HTTPAddr:       cfg.HTTPAddr,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	if cfg.HTTPAddr != "" {
		// Bind before the loop starts so a bad address fails the unit.
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
		}
		srv := web.New(cfg.HTTPAddr, tracker, reg)
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", ln.Addr())
	}

	l := &loop{
		io:         io,
		seq:        seq,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    collector,
		notifier:   systemd.NewDaemon(),
		report:     cfg.Report,
		now:        time.Now,
		written:    out,
	}
	l.boot(cfg.EvaluateAtBoot)

	log.Printf("started: chip=%s pins=%+v tick=%v blink=%v broker=%q report=%v",
		cfg.Chip, cfg.Pins, cfg.Tick, cfg.Blink, cfg.Broker, cfg.Report)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var watchdog <-chan time.Time
	if interval := systemd.WatchdogInterval(); interval > 0 {
		wd := time.NewTicker(interval)
		defer wd.Stop()
		watchdog = wd.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ticker.C, watchdog, sigCh)
}

func presence(switched bool) string {
	if switched {
		return "PRESENT"
	}
	return "ABSENT"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
