// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command nfcd runs an NFC controller session and exposes it to the host
// over HTTP and NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	nci "github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/api"
	"github.com/ZaparooProject/go-nci/hostbus"
	"github.com/ZaparooProject/go-nci/routing"
	"github.com/ZaparooProject/go-nci/simulator"
	"github.com/ZaparooProject/go-nci/supervisor"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

var (
	flagConfig   string
	flagDebug    bool
	flagDownload bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Path to the YAML configuration file")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagDownload, "download", false, "Download controller firmware and exit")
}

// setupLogging configures the package logger and returns the daemon's own.
func setupLogging(cfg logConfig, debug bool, stderr io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log.level: %w", err)
		}
		level = parsed
	}
	if debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = stderr
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}
	nci.SetLogOutput(out)
	nci.SetConsoleLevel(level)
	nci.SetDebugEnabled(level <= zerolog.DebugLevel)

	return nci.Logger().With().Str("component", "nfcd").Logger(), nil
}

// daemon owns everything started by run.
type daemon struct {
	log    zerolog.Logger
	cfg    *config
	sim    *simulator.Controller
	table  *routing.Table
	mgr    *nci.Manager
	bridge *hostbus.Bridge
	nc     *nats.Conn
	server *api.Server
}

func newDaemon(cfg *config, log zerolog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log}

	hal, err := newHAL(cfg.HAL, log)
	if err != nil {
		return nil, err
	}

	log.Warn().Msg("no vendor NCI stack linked, using the simulated controller")
	d.sim = simulator.New(simulator.WithLogger(log.With().Str("component", "simulator").Logger()))
	d.table = routing.New()

	opts := []nci.Option{
		nci.WithConfig(cfg.Controller),
		nci.WithLogger(log.With().Str("component", "manager").Logger()),
		nci.WithRouter(d.table),
	}
	if hal != nil {
		opts = append(opts, nci.WithHAL(hal))
	}

	if cfg.NATS.URL != "" {
		d.nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("nfcd"),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			d.sim.Stop()
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		d.bridge = hostbus.New(d.nc, hostbus.WithPrefix(cfg.NATS.Prefix),
			hostbus.WithLogger(log.With().Str("component", "hostbus").Logger()))
		opts = append(opts, nci.WithHostListener(d.bridge))
	}

	d.mgr, err = nci.NewManager(d.sim, opts...)
	if err != nil {
		d.close()
		return nil, err
	}

	if cfg.API.Enabled {
		d.server = api.NewServer(d.mgr, cfg.API.Config, api.WithLogger(log.With().Str("component", "api").Logger()))
	}
	return d, nil
}

// restore applies the configured screen state and discovery settings.
func (d *daemon) restore(context.Context) error {
	d.table.SetT3tMax(d.mgr.LfT3tMax())
	if err := d.mgr.SetScreenState(d.cfg.screenMask()); err != nil {
		return fmt.Errorf("set screen state: %w", err)
	}
	if err := d.mgr.EnableDiscovery(d.cfg.discoveryParams()); err != nil {
		return fmt.Errorf("enable discovery: %w", err)
	}
	return nil
}

func (d *daemon) run(ctx context.Context) error {
	if err := d.mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize controller: %w", err)
	}
	defer d.shutdown()

	if err := d.restore(ctx); err != nil {
		return err
	}
	for _, name := range d.cfg.Simulator.Tags {
		ep, _ := newEndpoint(name)
		d.sim.Place(ep)
	}

	errCh := make(chan error, 3)
	if d.bridge != nil {
		if err := d.bridge.ServeScreen(d.mgr); err != nil {
			return err
		}
	}
	if d.server != nil {
		go func() {
			if err := d.server.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("http api: %w", err)
			}
		}()
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d.cfg.Controller.Recovery {
		sup := supervisor.New(d.mgr, d.cfg.Supervisor,
			supervisor.WithOnRecovered(func(ctx context.Context, _ supervisor.Target) error {
				return d.restore(ctx)
			}),
			supervisor.WithLogger(d.log.With().Str("component", "supervisor").Logger()))
		go func() {
			if err := sup.Run(watchCtx); err != nil {
				errCh <- err
			}
		}()
	} else {
		go func() {
			select {
			case fe := <-d.mgr.Fatal():
				errCh <- fe
			case <-watchCtx.Done():
			}
		}()
	}

	d.log.Info().Str("session", d.mgr.Session().Snapshot().ID.String()).Msg("nfcd running")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdown stops the surfaces, then the controller.
func (d *daemon) shutdown() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.server.Shutdown(ctx); err != nil {
			d.log.Warn().Err(err).Msg("http shutdown")
		}
		cancel()
	}
	if d.bridge != nil {
		d.bridge.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.mgr.Deinitialize(ctx); err != nil {
		d.log.Warn().Err(err).Msg("deinitialize")
	}
}

func (d *daemon) close() {
	if d.mgr != nil {
		_ = d.mgr.Close()
	}
	if d.nc != nil {
		if err := d.nc.Drain(); err != nil {
			d.nc.Close()
		}
	}
	d.sim.Stop()
}

func download(ctx context.Context, d *daemon) error {
	written, err := d.mgr.Download(ctx)
	if err != nil {
		return fmt.Errorf("firmware download: %w", err)
	}
	if written {
		d.log.Info().Msg("firmware updated")
	} else {
		d.log.Info().Msg("firmware already current")
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log, err := setupLogging(cfg.Log, flagDebug, os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Log.SessionLog {
		if path, err := nci.InitSessionLog(); err != nil {
			log.Warn().Err(err).Msg("session log unavailable")
		} else {
			log.Info().Str("path", path).Msg("session log opened")
			defer func() { _ = nci.CloseSessionLog() }()
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		cancel()
	}()

	d, err := newDaemon(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer d.close()

	if flagDownload {
		err = download(ctx, d)
	} else {
		err = d.run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("nfcd stopped")
		return 1
	}
	return 0
}
