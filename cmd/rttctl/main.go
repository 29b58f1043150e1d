package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jxsl13/udprtt/console"
)

func main() {
	addrPtr := flag.String("addr", "127.0.0.1:8880", "ip:port of the server console")

	flag.Parse()

	line := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(line) == "" {
		line = "stats"
	}

	conn, err := console.DialTo(*addrPtr, console.WithReconnectRetries(0))
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	replies, err := conn.Exec(line)
	for _, reply := range replies {
		fmt.Println(reply)
	}
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
