// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// rillrate-tail follows flows on a node from the terminal.
//
// Without paths it lists what the session may subscribe to. With
// paths it mirrors each one and prints every state change. --raw
// prints the packed CBOR of every update in diagnostic notation
// instead of the decoded value.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rillrate-fossil/rillrate-sub001/client"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/process"
	"github.com/rillrate-fossil/rillrate-sub001/lib/version"
	"github.com/rillrate-fossil/rillrate-sub001/protocol"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		url         string
		raw         bool
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("rillrate-tail", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "ws://127.0.0.1:9090/live", "websocket endpoint of the node")
	flagSet.BoolVar(&raw, "raw", false, "print packed updates in CBOR diagnostic notation")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rillrate-tail [flags] [path...]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("rillrate-tail")
		return nil
	}

	paths := make([]ref.Path, 0, flagSet.NArg())
	for _, text := range flagSet.Args() {
		path, err := ref.ParsePath(text)
		if err != nil {
			return err
		}
		paths = append(paths, path)
	}

	level, err := process.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	ctx, stop := process.SignalContext()
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, url, client.Options{Logger: process.NewLogger(level)})
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	printer := newPrinter(os.Stdout)
	if len(paths) == 0 {
		return list(ctx, c, printer)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, path := range paths {
		group.Go(func() error {
			return follow(groupCtx, c, path, raw, printer)
		})
	}
	err = group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// list prints the registry once and returns.
func list(ctx context.Context, c *client.Client, printer *printer) error {
	mirror, err := c.Mirror(flows.PathsPath)
	if err != nil {
		return err
	}
	defer mirror.Close()
	if err := mirror.Next(ctx); err != nil {
		return fmt.Errorf("reading path registry: %w", err)
	}
	state, ok := client.Value[flows.PathsState](mirror)
	if !ok {
		return fmt.Errorf("path registry holds %T", mirror.Value())
	}
	for _, description := range state.Under(ref.Path{}, false) {
		printer.entry(description.Path, string(description.StreamType), description.Layer.String())
	}
	return nil
}

func follow(ctx context.Context, c *client.Client, path ref.Path, raw bool, printer *printer) error {
	if raw {
		return followRaw(ctx, c, path, printer)
	}
	mirror, err := c.Mirror(path)
	if err != nil {
		return err
	}
	defer mirror.Close()
	for {
		if err := mirror.Next(ctx); err != nil {
			if errors.Is(err, client.ErrClosed) {
				printer.ended(path)
				return nil
			}
			return err
		}
		printer.value(path, string(mirror.Subscription().StreamType()), fmt.Sprintf("%+v", mirror.Value()))
	}
}

func followRaw(ctx context.Context, c *client.Client, path ref.Path, printer *printer) error {
	sub, err := c.Subscribe(path)
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		update, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, client.ErrClosed) {
				printer.ended(path)
				return nil
			}
			return err
		}
		notation, err := codec.Diagnose(update.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		kind := "delta"
		if update.Kind == protocol.ResponseState {
			kind = "state"
		}
		printer.value(path, kind, notation)
	}
}

// printer serializes output lines from concurrent followers.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	path   lipgloss.Style
	detail lipgloss.Style
	muted  lipgloss.Style
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		path:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		detail: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		muted:  lipgloss.NewStyle().Faint(true).Italic(true),
	}
}

func (p *printer) entry(path ref.Path, streamType, layer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s  %s\n", p.path.Render(path.String()), p.detail.Render(streamType+" "+layer))
}

func (p *printer) value(path ref.Path, label, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s  %s\n", p.path.Render(path.String()), p.detail.Render(label), text)
}

func (p *printer) ended(path ref.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.path.Render(path.String()), p.muted.Render("stream ended"))
}
