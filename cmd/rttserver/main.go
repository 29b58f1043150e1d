package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jxsl13/udprtt/config"
	"github.com/jxsl13/udprtt/console"
	"github.com/jxsl13/udprtt/monitor"
	"github.com/jxsl13/udprtt/server"
	"github.com/prometheus/client_golang/prometheus"
)

func handleInputError(message string) {
	fmt.Println(message)
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	configPtr := flag.String("config", "", "path to a YAML config file")
	bindPtr := flag.String("bind", "", "ip:port to listen on, overrides server.address")
	consolePtr := flag.String("console", "", "ip:port of the telnet console, overrides console.address")
	monitorPtr := flag.String("monitor", "", "ip:port of the metrics and event feed, overrides monitor.address")

	flag.Parse()

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			handleInputError(err.Error())
		}
		cfg = *loaded
	}
	if *bindPtr != "" {
		cfg.Server.Address = *bindPtr
	}
	if *consolePtr != "" {
		cfg.Console.Address = *consolePtr
	}
	if *monitorPtr != "" {
		cfg.Monitor.Address = *monitorPtr
	}
	if err := cfg.Validate(); err != nil {
		handleInputError(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, cfg)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	opts := []server.Option{
		server.WithLoss(server.Loss{
			Rate:     cfg.Server.LossRate,
			MinDelay: cfg.Server.MinDelay.Duration,
			MaxDelay: cfg.Server.MaxDelay.Duration,
		}),
		server.WithMaxHandlers(cfg.Server.MaxHandlers),
		server.WithRegistry(reg),
	}

	var mon *monitor.Monitor
	if cfg.Monitor.Address != "" {
		mon = monitor.New(reg, server.Logger)
		opts = append(opts, server.WithEventSink(mon.Hub()))
	}

	d, err := server.Listen(cfg.Server.Address, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if mon != nil {
		go func() {
			err := mon.ListenAndServe(ctx, cfg.Monitor.Address)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Println(err)
				cancel()
			}
		}()
	}

	if cfg.Console.Address != "" {
		cons := console.NewServer(d)
		go func() {
			err := cons.ListenAndServe(ctx, cfg.Console.Address)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Println(err)
				cancel()
			}
		}()
	}

	log.Printf("UDP server is running on %s (loss rate %.2f)\n", d.Addr(), d.Loss().Rate)
	return d.Serve(ctx)
}
