package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jxsl13/udprtt/internal"
	"github.com/reiver/go-telnet"
)

var (
	// ErrNetwork is returned when some network related error occurrs
	ErrNetwork = errors.New("a network error occurred")

	// ErrNotAConsole is returned when the remote side does not greet with the console banner
	ErrNotAConsole = errors.New("remote is not a console")

	// ErrClosed is returned when a closed connection is used
	ErrClosed = errors.New("console connection closed")
)

// Conn is the telnet connection to a dispatcher console.
type Conn struct {
	telnetConn *telnet.Conn
	address    string

	ctx               context.Context
	reconnectRetries  int
	minReconnectDelay time.Duration
	maxReconnectDelay time.Duration

	mu        sync.Mutex
	isClosed  bool
	closeOnce sync.Once
}

// DialTo connects to a console and waits for its banner.
// Failing to connect is not retried.
func DialTo(address string, opts ...Option) (*Conn, error) {
	c := &Conn{
		address:           address,
		ctx:               context.Background(),
		reconnectRetries:  5,
		minReconnectDelay: 100 * time.Millisecond,
		maxReconnectDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	err := c.connect()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect() error {
	telnetConn, err := telnet.DialTo(c.address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	c.telnetConn = telnetConn

	line, err := readLine(c.telnetConn)
	if err != nil {
		c.telnetConn.Close()
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if line != Banner {
		c.telnetConn.Close()
		return fmt.Errorf("%w: %s", ErrNotAConsole, line)
	}
	return nil
}

// Close says goodbye to the console and closes the connection.
func (c *Conn) Close() error {
	err := error(nil)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		_ = writeLine(c.telnetConn, "quit")
		c.isClosed = true
		err = c.telnetConn.Close()
	})
	return err
}

// ReadLine reads a line from the console.
func (c *Conn) ReadLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return "", ErrClosed
	}
	return readLine(c.telnetConn)
}

// WriteLine writes a line to the console.
// If the connection is lost, it attempts to reconnect before writing the line again.
func (c *Conn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClosed
	}

	err := writeLine(c.telnetConn, line)
	if err == nil {
		return nil
	}
	recErr := c.reconnect()
	if recErr != nil {
		return fmt.Errorf("%w: %v", err, recErr)
	}
	return writeLine(c.telnetConn, line)
}

// Exec sends a console line and returns one reply line per command in it.
func (c *Conn) Exec(line string) ([]string, error) {
	commands, err := ParseCommands(line)
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return nil, errors.New("no command given")
	}

	err = c.WriteLine(line)
	if err != nil {
		return nil, err
	}

	replies := make([]string, 0, len(commands))
	for range commands {
		reply, err := c.ReadLine()
		if err != nil {
			return replies, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// reconnect must be called with c.mu held
func (c *Conn) reconnect() error {
	c.telnetConn.Close() // ignore possible error

	backoff := internal.NewBackoffPolicy(c.minReconnectDelay, c.maxReconnectDelay)

	// keep track of the last error that was returned
	err := error(nil)
	for retry := 0; c.reconnectRetries < 0 || retry < c.reconnectRetries; retry++ {
		if c.isClosed {
			return ErrClosed
		}

		err = c.connect()
		if err == nil {
			return nil
		} else if errors.Is(err, ErrNotAConsole) {
			// wrong remote, reconnecting makes no sense
			return err
		}

		sleepErr := internal.Sleep(c.ctx, backoff(retry))
		if sleepErr != nil {
			return fmt.Errorf("%w: %v", err, sleepErr)
		}
	}
	if err == nil {
		err = fmt.Errorf("%w: no reconnect attempts configured", ErrNetwork)
	}
	return err
}
