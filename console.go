package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"

	tty "github.com/mattn/go-tty"
)

var console = flag.String("console", "", "A serial device, e.g. /dev/ttyUSB0, that takes the same commands as the port. Empty means none")

// Console runs the line protocol on a terminal device, for boards without a network.
type Console struct {
	s   *Server
	tty *tty.TTY
	w   *bufio.Writer
}

func openConsole(path string, s *Server) (*Console, error) {
	t, err := tty.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", path, err)
	}
	c := newConsole(s, t, t.Output())
	log.Printf("Console on %s", path)
	return c, nil
}

func newConsole(s *Server, t *tty.TTY, out io.Writer) *Console {
	return &Console{s: s, tty: t, w: bufio.NewWriter(out)}
}

func (c *Console) banner() error {
	fmt.Fprintf(c.w, "hpmctl %s: %v\n", c.s.sc.Variant().Name, c.s.sc.Clocks())
	return c.w.Flush()
}

// run serves commands typed on the console until QUIT or a read error.
func (c *Console) run() {
	err := c.banner()
	if err != nil {
		log.Printf("Error writing console banner: %v", err)
		return
	}
	for {
		l, err := c.tty.ReadString()
		if err != nil {
			log.Printf("Error reading console: %v", err)
			return
		}
		more, err := c.s.handleLine(l, c.w)
		if err != nil {
			log.Printf("Error writing console reply: %v", err)
			return
		}
		if !more {
			log.Printf("Console closed")
			return
		}
	}
}

func (c *Console) Close() error {
	return c.tty.Close()
}
