package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jxsl13/udprtt/client"
	"github.com/jxsl13/udprtt/config"
)

func handleInputError(message string) {
	fmt.Println(message)
	fmt.Printf("usage: %s [flags] <host> <port>\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	configPtr := flag.String("config", "", "path to a YAML config file")
	requestsPtr := flag.Int("requests", -1, "number of data requests, overrides client.requests")
	reWaitPtr := flag.Bool("rewait", false, "send every request once and only wait again on timeout")

	flag.Parse()

	if flag.NArg() != 2 {
		handleInputError("host and port must be specified")
	}
	host := flag.Arg(0)
	port, err := strconv.Atoi(flag.Arg(1))
	if err != nil || port < 0 || port > 65535 {
		handleInputError("port number out of range")
	}

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			handleInputError(err.Error())
		}
		cfg = *loaded
	}
	if *requestsPtr >= 0 {
		cfg.Client.Requests = *requestsPtr
	}
	if *reWaitPtr {
		cfg.Client.Retransmit = false
	}
	if err := cfg.Validate(); err != nil {
		handleInputError(err.Error())
	}

	// exchanges are reported on stdout, next to the summary
	client.Logger.SetOutput(os.Stdout)

	cc := cfg.Client
	s, err := client.Dial(net.JoinHostPort(host, strconv.Itoa(port)),
		client.WithHandshakeTimeout(cc.HandshakeTimeout.Duration),
		client.WithRequestTimeout(cc.RequestTimeout.Duration),
		client.WithMaxAttempts(cc.MaxAttempts),
		client.WithRequests(uint16(cc.Requests)),
		client.WithRetransmit(cc.Retransmit),
		client.WithTOS(cc.TOS),
	)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := s.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Println(err)
	}
	if !sum.Connected {
		os.Exit(1)
	}
	fmt.Print(sum.String())
}
