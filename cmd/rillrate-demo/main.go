// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// rillrate-demo is an instrumented process with an embedded node.
//
// It publishes a handful of synthetic flows and serves them to
// dashboards on --http. The process's own hub reaches the node through
// an in-memory pipe, exactly as a remote provider would over TCP.
// The demo.mode selector accepts choices from dashboards and changes
// how fast the synthetic load moves.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rillrate-fossil/rillrate-sub001/engine"
	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/process"
	"github.com/rillrate-fossil/rillrate-sub001/lib/version"
	"github.com/rillrate-fossil/rillrate-sub001/node"
	"github.com/rillrate-fossil/rillrate-sub001/provider"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		httpAddress string
		interval    time.Duration
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("rillrate-demo", pflag.ContinueOnError)
	flagSet.StringVar(&httpAddress, "http", "127.0.0.1:9090", "dashboard, metrics and status listen address")
	flagSet.DurationVar(&interval, "interval", 250*time.Millisecond, "period of the synthetic load")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("rillrate-demo")
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	level, err := process.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := process.NewLogger(level)

	ctx, stop := process.SignalContext()
	defer stop()

	hub := engine.NewHub(engine.HubConfig{Logger: logger.With("component", "hub")})
	defer hub.Close()

	demo, err := newDemo(hub)
	if err != nil {
		return err
	}
	defer demo.close()

	server := node.NewServer(node.Config{
		Name:        "rillrate-demo",
		HTTPAddress: httpAddress,
		UnlockAll:   true,
		Logger:      logger.With("component", "node"),
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		return embed(groupCtx, server, hub, logger)
	})
	group.Go(func() error {
		return demo.generate(groupCtx, interval)
	})
	return group.Wait()
}

// embed connects hub to server through a pipe for as long as ctx
// lives.
func embed(ctx context.Context, server *node.Server, hub *engine.Hub, logger *slog.Logger) error {
	select {
	case <-server.Ready():
	case <-ctx.Done():
		return nil
	}

	providerEnd, nodeEnd := net.Pipe()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ConnectProvider(groupCtx, nodeEnd)
	})
	group.Go(func() error {
		return provider.Serve(groupCtx, providerEnd, provider.Config{
			Name:   "demo",
			Hub:    hub,
			Logger: logger.With("component", "provider"),
		})
	})
	return group.Wait()
}

// demo owns the synthetic flows.
type demo struct {
	requests *engine.Tracer[flows.CounterState, flows.CounterEvent, flow.NoAction]
	load     *engine.Tracer[flows.GaugeState, flows.GaugeEvent, flow.NoAction]
	latency  *engine.Tracer[flows.PulseState, flows.PulseEvent, flow.NoAction]
	log      *engine.Tracer[flows.LoggerState, flows.LoggerEvent, flow.NoAction]
	mode     *engine.Tracer[flows.SelectorState, flows.SelectorEvent, flows.Choose]

	speed  chan float64
	detach func()
}

var modeSpeeds = map[string]float64{"calm": 0.25, "normal": 1, "storm": 4}

func newDemo(hub *engine.Hub) (_ *demo, err error) {
	d := &demo{speed: make(chan float64, 1)}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	if d.requests, err = engine.NewTracer(hub, ref.PathOf("demo", "http", "requests"),
		flows.Counter{}, flows.CounterState{}, engine.TracerOptions{}); err != nil {
		return nil, err
	}
	if d.load, err = engine.NewTracer(hub, ref.PathOf("demo", "cpu", "load"),
		flows.Gauge{}, flows.GaugeState{}, engine.TracerOptions{Mode: engine.Pull(time.Second)}); err != nil {
		return nil, err
	}
	if d.latency, err = engine.NewTracer(hub, ref.PathOf("demo", "http", "latency"),
		flows.Pulse{}, flows.NewPulseState(30*time.Second), engine.TracerOptions{}); err != nil {
		return nil, err
	}
	if d.log, err = engine.NewTracer(hub, ref.PathOf("demo", "log"),
		flows.Logger{}, flows.NewLoggerState(50), engine.TracerOptions{}); err != nil {
		return nil, err
	}
	if d.mode, err = engine.NewControlTracer[flows.Choose](hub, ref.PathOf("demo", "mode"),
		flows.Selector{}, flows.NewSelectorState("Load", "calm", "normal", "storm"), engine.TracerOptions{}); err != nil {
		return nil, err
	}
	d.mode.Send(flows.Select("normal"))

	d.detach, err = d.mode.OnAction(func(choice flows.Choose) {
		speed, ok := modeSpeeds[choice.Value]
		if !ok {
			d.log.Send(flows.Log(fmt.Sprintf("ignoring unknown mode %q", choice.Value)))
			return
		}
		d.mode.Send(flows.Select(choice.Value))
		d.log.Send(flows.Log("mode set to " + choice.Value))
		select {
		case <-d.speed:
		default:
		}
		d.speed <- speed
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// generate drives the flows until ctx ends.
func (d *demo) generate(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	speed := 1.0
	phase := 0.0
	for {
		select {
		case <-ctx.Done():
			return nil
		case speed = <-d.speed:
		case <-ticker.C:
			phase += 0.1 * speed
			d.requests.Send(flows.Inc(int64(1 + rand.IntN(int(1+10*speed)))))
			d.load.Send(flows.Set(50 + 40*math.Sin(phase)))
			d.latency.Send(flows.Push(d.latency.Now(), 20*speed+rand.Float64()*10))
			if rand.IntN(20) == 0 {
				d.log.Send(flows.Log(fmt.Sprintf("synthetic event at phase %.1f", phase)))
			}
		}
	}
}

func (d *demo) close() {
	if d.detach != nil {
		d.detach()
	}
	if d.mode != nil {
		d.mode.Close()
	}
	if d.log != nil {
		d.log.Close()
	}
	if d.latency != nil {
		d.latency.Close()
	}
	if d.load != nil {
		d.load.Close()
	}
	if d.requests != nil {
		d.requests.Close()
	}
}
