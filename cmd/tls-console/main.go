// Command tls-console is an interactive terminal for a TLS ASCII reader.
// Each line typed is sent as a command and the reader's reply frame printed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/stocky-devel/stocky/internal/commlink"
	"github.com/stocky-devel/stocky/internal/monitoring"
	"github.com/stocky-devel/stocky/internal/serialmux"
	"github.com/stocky-devel/stocky/internal/tlsascii"
)

var (
	device  = flag.String("device", "/dev/rfcomm0", "Serial device of the reader")
	baud    = flag.Int("baud", 0, "Baud rate (0 uses the reader default)")
	devMode = flag.Bool("dev", false, "Talk to a simulated reader")
	timeout = flag.Duration("timeout", 3*time.Second, "How long to wait for each reply")
	debug   = flag.Bool("debug", false, "Log raw lines")
)

const consoleComment = "console"

const helpText = `Commands are sent to the reader verbatim, e.g.
  .vr                 version information
  .iv -x -n           inventory
  .bc -al on          barcode alert
Built-ins:
  id                  identify the reader
  help                this text
  quit                leave the console`

func main() {
	flag.Parse()
	monitoring.SetDebug(*debug)

	var factory serialmux.PortFactory = serialmux.RealPortFactory{}
	if *devMode {
		factory = serialmux.PortOpenerFunc(func(string, serialmux.PortOptions) (serialmux.SerialPorter, error) {
			return serialmux.NewSimulatedReader(map[string]int{"3000E2801160600002096381F0B1": -52}), nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	link := commlink.New(commlink.Options{
		Path:    *device,
		Serial:  serialmux.PortOptions{BaudRate: *baud},
		Factory: factory,
	})
	if err := link.Open(ctx); err != nil {
		log.Fatalf("failed to open reader: %v", err)
	}
	defer link.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tls> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("failed to start console: %v", err)
	}
	defer rl.Close()

	c := &console{link: link, out: rl.Stdout(), timeout: *timeout}
	fmt.Fprintf(c.out, "connected to %s, type help for help\n", *device)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return
		}
		if !c.handle(ctx, line) {
			return
		}
	}
}

type console struct {
	link    *commlink.Link
	out     io.Writer
	timeout time.Duration
}

// handle runs one input line and reports whether the console should go on.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(c.out, helpText)
		return true
	case "id":
		fmt.Fprintln(c.out, c.link.IDString(ctx))
		return true
	}

	cmd, err := parseInput(line)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return true
	}
	seq, err := c.link.Send(cmd)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return true
	}
	f := c.link.Receive(ctx, c.timeout)
	fmt.Fprint(c.out, describeFrame(f, seq))
	return true
}

// parseInput turns a console line into a command tagged for the console. A
// missing leading period is added.
func parseInput(line string) (tlsascii.Command, error) {
	if !strings.HasPrefix(line, ".") {
		line = "." + line
	}
	cmd, err := tlsascii.ParseCommand(line)
	if err != nil {
		return tlsascii.Command{}, err
	}
	return cmd.WithComment(consoleComment), nil
}

// describeFrame renders a reply frame with its outcome. seq is the sequence
// number the command was sent with.
func describeFrame(f tlsascii.Frame, seq uint64) string {
	if f.Empty() {
		return "(no reply)\n"
	}
	var b strings.Builder
	for _, l := range f.Lines() {
		fmt.Fprintf(&b, "  %s\n", l)
	}
	rc := f.ReturnCode()
	if rc == tlsascii.ReturnOK {
		b.WriteString("=> OK")
	} else {
		fmt.Fprintf(&b, "=> error %d: %s", rc, tlsascii.ErrorText(rc))
	}
	if corr, ok := f.CorrelationMap(); ok {
		if got, ok := corr.Seq(); ok && got != seq {
			fmt.Fprintf(&b, " (reply to #%d, expected #%d)", got, seq)
		}
	}
	b.WriteString("\n")
	return b.String()
}
