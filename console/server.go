package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/jxsl13/udprtt/server"
	"github.com/reiver/go-telnet"
)

// Banner is the first line every console connection receives.
const Banner = "udprtt console, type help for a list of commands"

// maxLineSize limits a single console line
const maxLineSize = 1024

var (
	// Logger is the default logger of every console Server that is not configured with WithLogger.
	Logger = log.New(os.Stderr, "", log.LstdFlags)

	// ErrLineTooLong is returned when a console line exceeds the maximum line size.
	ErrLineTooLong = errors.New("line too long")
)

// Source is the state the console reports on.
// A *server.Dispatcher is a Source.
type Source interface {
	Stats() server.Stats
	Loss() server.Loss
}

// Server is the operator console of a running dispatcher.
// Every connection is served independently, replies are single lines.
type Server struct {
	source Source
	logger *log.Logger
}

// NewServer creates a console that reports on source.
func NewServer(source Source, opts ...ServerOption) *Server {
	s := &Server{
		source: source,
		logger: Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe binds a tcp listener to address and serves it until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts console connections on l until ctx is done.
// The listener is closed when Serve returns.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ts := &telnet.Server{
		Handler: s,
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.logger.Printf("Console listening on %s\n", l.Addr())
	err := ts.Serve(l)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ServeTELNET implements the telnet.Handler interface.
func (s *Server) ServeTELNET(ctx telnet.Context, w telnet.Writer, r telnet.Reader) {
	err := writeLine(w, Banner)
	if err != nil {
		return
	}

	for {
		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("console: %v\n", err)
			}
			return
		}

		commands, err := ParseCommands(line)
		if err != nil {
			if writeLine(w, "error: "+err.Error()) != nil {
				return
			}
			continue
		}

		for _, cmd := range commands {
			reply, quit := s.Execute(cmd)
			if writeLine(w, reply) != nil || quit {
				return
			}
		}
	}
}

// Execute runs a single command and returns its one line reply.
// quit is true when the connection is to be closed after the reply.
func (s *Server) Execute(cmd Command) (reply string, quit bool) {
	switch strings.ToLower(cmd.Name) {
	case "help":
		return "commands: help, stats, config, quit", false
	case "stats":
		return formatStats(s.source.Stats()), false
	case "config":
		l := s.source.Loss()
		return fmt.Sprintf("loss_rate=%.2f min_delay=%s max_delay=%s", l.Rate, l.MinDelay, l.MaxDelay), false
	case "quit", "exit":
		return "bye", true
	default:
		return fmt.Sprintf("error: %v: %s", ErrUnknownCommand, cmd.Name), false
	}
}

func formatStats(st server.Stats) string {
	return fmt.Sprintf(
		"received=%d malformed=%d syn=%d ack=%d fin=%d data=%d dropped=%d replied=%d active=%d",
		st.Received,
		st.Malformed,
		st.Syn,
		st.Ack,
		st.Fin,
		st.Data,
		st.Dropped,
		st.Replied,
		st.Active,
	)
}

func writeLine(w io.Writer, line string) error {
	stream := []byte(line + "\r\n")
	for len(stream) > 0 {
		n, err := w.Write(stream)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		stream = stream[n:]
	}
	return nil
}

// readLine reads single bytes until it hits a line break.
// The line break and a preceding carriage return are not part of the line.
func readLine(r io.Reader) (string, error) {
	stackArray := [256]byte{}
	lineBuffer := bytes.NewBuffer(stackArray[:0])
	singleCharBuffer := [1]byte{}

	for {
		n, err := r.Read(singleCharBuffer[:])
		if n == 1 {
			if singleCharBuffer[0] == '\n' {
				break
			}
			if lineBuffer.Len() >= maxLineSize {
				return "", ErrLineTooLong
			}
			lineBuffer.WriteByte(singleCharBuffer[0])
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", err
			}
			return "", fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}

	return strings.TrimRight(lineBuffer.String(), "\r\x00"), nil
}
