// Package console implements the line-oriented operator console of a running
// emulator session.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/groutine"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/profile"
)

// DefaultPrompt is shown before each command on interactive input.
const DefaultPrompt = "blemu> "

// Emulator is the session surface the console drives. *peripheral.Server implements it.
type Emulator interface {
	Start() error
	Stop() error
	Notify(characteristic string) (int, error)
	NotifyAll() (int, error)
	Modify(characteristic string, edit func(codec.Reading) (codec.Reading, error)) (codec.Reading, int, error)
	Rotate() (codec.ProximityIdentifier, error)
	Profile() profile.Profile
	Status() peripheral.Snapshot
}

// Options configures a Console.
type Options struct {
	// Interactive enables the prompt.
	Interactive bool
	Prompt      string
	Logger      *logrus.Logger
}

// Console reads commands from in and writes results to out.
type Console struct {
	emu         Emulator
	in          io.Reader
	out         io.Writer
	mu          sync.Mutex
	interactive bool
	prompt      string
	logger      *logrus.Logger
	lastState   peripheral.State

	ok   *color.Color
	warn *color.Color
	fail *color.Color
	dim  *color.Color
}

// New creates a console for emu.
func New(emu Emulator, in io.Reader, out io.Writer, opts Options) *Console {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	prompt := opts.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Console{
		emu:         emu,
		in:          in,
		out:         out,
		interactive: opts.Interactive,
		prompt:      prompt,
		logger:      logger,
		lastState:   peripheral.Idle,
		ok:          color.New(color.FgGreen),
		warn:        color.New(color.FgYellow),
		fail:        color.New(color.FgRed),
		dim:         color.New(color.FgCyan),
	}
}

// Run executes commands until quit, end of input or ctx cancellation.
// End of input and quit return nil; cancellation returns ctx.Err().
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan error, 1)

	groutine.Go(ctx, "console-input", func(ctx context.Context) {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		done <- scanner.Err()
	})

	c.showPrompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case line := <-lines:
			quit, err := c.Execute(line)
			if err != nil {
				c.printf(c.fail, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			c.showPrompt()
		}
	}
}

// Execute runs one command line. It reports whether the console should exit.
func (c *Console) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.logger.WithField("command", cmd).Debug("Console command")

	switch cmd {
	case "start":
		if err := c.emu.Start(); err != nil {
			if errors.Is(err, peripheral.ErrAdapterNotReady) {
				c.printf(c.warn, "Bluetooth is not ready; start deferred until it powers on\n")
				return false, nil
			}
			return false, err
		}
		c.printf(c.ok, "starting\n")

	case "stop":
		if err := c.emu.Stop(); err != nil {
			return false, err
		}
		c.printf(c.ok, "stopped\n")

	case "notify":
		return false, c.notify(args)

	case "set":
		return false, c.set(args)

	case "rotate":
		id, err := c.emu.Rotate()
		if err != nil {
			return false, err
		}
		c.printf(c.ok, "rotated: %s\n", id.Identifier())

	case "status":
		c.PrintStatus(c.emu.Status())

	case "help", "?":
		c.help()

	case "quit", "exit", "q":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func (c *Console) notify(args []string) error {
	var (
		n   int
		err error
	)
	switch len(args) {
	case 0:
		n, err = c.emu.NotifyAll()
	case 1:
		uuid := gatt.NormalizeUUID(args[0])
		if uuid == "" {
			return fmt.Errorf("invalid UUID %q", args[0])
		}
		n, err = c.emu.Notify(uuid)
	default:
		return fmt.Errorf("%w: notify [uuid]", ErrUsage)
	}
	if err != nil {
		return err
	}
	c.printf(c.ok, "notified %d subscriber(s)\n", n)
	return nil
}

func (c *Console) set(args []string) error {
	args, target, err := prepare(c.emu.Profile().Kind(), args)
	if err != nil {
		return err
	}
	r, n, err := c.emu.Modify(target, func(current codec.Reading) (codec.Reading, error) {
		return editReading(current, args)
	})
	if err != nil {
		return err
	}
	c.printf(c.ok, "%s = %s", codec.CharacteristicOf(r), r)
	if n > 0 {
		c.printf(c.dim, " (notified %d)", n)
	}
	c.printf(nil, "\n")
	return nil
}

func (c *Console) help() {
	kind := c.emu.Profile().Kind()
	c.printf(nil, `Commands:
  start            publish the service and advertise
  stop             stop advertising and withdraw the service
  notify [uuid]    push current values to subscribers
  %s
  rotate           draw a new proximity identifier
  status           show the session
  help             show this help
  quit             exit
`, SetUsage[kind])
}

// PrintStatus renders a snapshot.
func (c *Console) PrintStatus(snap peripheral.Snapshot) {
	state := c.ok
	if snap.State != peripheral.Advertising {
		state = c.warn
	}
	ready := "ready"
	if !snap.Ready {
		ready = "powered off"
	}

	c.printf(nil, "Profile:     %s (%s)\n", snap.ProfileName, snap.Service)
	c.printf(nil, "Local name:  %s\n", snap.LocalName)
	c.printf(nil, "State:       ")
	c.printf(state, "%s", snap.StateName)
	c.printf(nil, " (%s)\n", ready)
	c.printf(nil, "Subscribers: %d\n", snap.Subscribers)
	for _, ch := range snap.Characteristics {
		c.printf(nil, "  %s %-28s [%s] ", ch.UUID, ch.Name, ch.Properties)
		c.printf(c.dim, "%s", ch.Hex)
		c.printf(nil, " %s", ch.Value)
		if ch.Subscribers > 0 {
			c.printf(nil, " (%d subscribed)", ch.Subscribers)
		}
		c.printf(nil, "\n")
	}
	if snap.LastError != nil {
		c.printf(c.fail, "Last error:  %v\n", snap.LastError)
	}
}

// Observe prints state transitions and failures. It is meant to be installed as
// the server observer.
func (c *Console) Observe(snap peripheral.Snapshot) {
	c.mu.Lock()
	changed := snap.State != c.lastState
	c.lastState = snap.State
	c.mu.Unlock()

	if !changed {
		return
	}
	switch snap.State {
	case peripheral.Advertising:
		c.printf(c.ok, "advertising %q (%s)\n", snap.LocalName, snap.ProfileName)
	case peripheral.Idle:
		if snap.LastError != nil {
			c.printf(c.fail, "session failed: %v\n", snap.LastError)
			return
		}
		c.printf(c.warn, "idle\n")
	default:
		c.printf(c.dim, "%s\n", snap.StateName)
	}
}

func (c *Console) showPrompt() {
	if c.interactive {
		c.printf(nil, "%s", c.prompt)
	}
}

func (c *Console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col == nil {
		fmt.Fprintf(c.out, format, args...)
		return
	}
	col.Fprintf(c.out, format, args...) //nolint:errcheck
}
