package console

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownCommand is answered when a console line names a command that does not exist.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnterminatedQuote is returned for a line with an opening quote but no closing one.
	ErrUnterminatedQuote = errors.New("unterminated quote")
)

// Command is a single console command with its arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommands parses a console line.
// Commands are separated by ';', everything after an unquoted '#' is a comment.
// Arguments are separated by whitespace and may be quoted, \" escapes a quote
// inside of a quoted argument.
func ParseCommands(line string) ([]Command, error) {
	var (
		data     = []byte(line)
		commands = make([]Command, 0, 1)
		current  = make([]string, 0, 2)
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		commands = append(commands, Command{
			Name: current[0],
			Args: current[1:],
		})
		current = make([]string, 0, 2)
	}

	i := 0
outer:
	for i < len(data) {
		i += skipWhitespace(data[i:])
		if i >= len(data) {
			break
		}

		switch data[i] {
		case '#':
			break outer
		case ';':
			flush()
			i++
		case '"':
			arg, n, err := parseQuoted(data[i:])
			if err != nil {
				return nil, err
			}
			current = append(current, arg)
			i += n
		default:
			n := skipToDelimiter(data[i:])
			current = append(current, string(data[i:i+n]))
			i += n
		}
	}
	flush()

	return commands, nil
}

// ParseCommand parses a line that must contain exactly one command.
func ParseCommand(line string) (Command, error) {
	commands, err := ParseCommands(line)
	if err != nil {
		return Command{}, err
	}
	if len(commands) != 1 {
		return Command{}, fmt.Errorf("expected a single command, got %d", len(commands))
	}
	return commands[0], nil
}

// parseQuoted expects data to start with '"' and returns the unescaped argument
// and the number of consumed bytes including both quotes.
func parseQuoted(data []byte) (string, int, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)))

	for j := 1; j < len(data); j++ {
		c := data[j]
		switch {
		case c == '\\' && j+1 < len(data) && (data[j+1] == '"' || data[j+1] == '\\'):
			j++
			buf.WriteByte(data[j])
		case c == '"':
			return buf.String(), j + 1, nil
		default:
			buf.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("%w: %s", ErrUnterminatedQuote, data)
}

func (c Command) String() string {
	sb := strings.Builder{}
	sb.WriteString(c.Name)
	for _, arg := range c.Args {
		sb.WriteByte(' ')
		if arg == "" || strings.ContainsAny(arg, " \t;#\"\\") {
			sb.WriteString(strconv.Quote(arg))
		} else {
			sb.WriteString(arg)
		}
	}
	return sb.String()
}

func (c Command) MarshalText() ([]byte, error) {
	if c.Name == "" {
		return nil, errors.New("empty command name")
	}
	return []byte(c.String()), nil
}

func (c *Command) UnmarshalText(data []byte) error {
	cmd, err := ParseCommand(string(data))
	if err != nil {
		return err
	}
	*c = cmd
	return nil
}
