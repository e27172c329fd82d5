package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Jon-Bright/hpmctl/dac"
	"github.com/Jon-Bright/hpmctl/dma"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

type testBoard struct {
	s  *Server
	sc *sysctl.Sim
	ds *dma.Sim
}

func newTestServer(t *testing.T) *testBoard {
	v, err := sysctl.Lookup("hpm53")
	if err != nil {
		t.Fatalf("Failed Lookup: %v", err)
	}
	sc, err := sysctl.NewSim(v)
	if err != nil {
		t.Fatalf("Failed sysctl.NewSim: %v", err)
	}
	t.Cleanup(func() { sc.Close() })
	if err := sc.Init(v.DefaultConfig()); err != nil {
		t.Fatalf("Failed Init: %v", err)
	}
	ds, err := dma.NewSim(sc.Controller, dma.HDMA)
	if err != nil {
		t.Fatalf("Failed dma.NewSim: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	d, err := dac.NewSim(sc, "DAC0", dac.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed dac.NewSim: %v", err)
	}
	ds.Attach(d.Regs())
	alloc := func(n int) (dma.Buffer, error) { return ds.NewBuffer(n), nil }
	s, err := NewServer(0, sc.Controller, d, ds.HDMA(0), 48, 100000, alloc)
	if err != nil {
		t.Fatalf("Failed NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &testBoard{s, sc, ds}
}

func run(t *testing.T, s *Server, l string) string {
	t.Helper()
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	more, err := s.handleLine(l, w)
	if err != nil {
		t.Fatalf("Failed handleLine(%s): %v", l, err)
	}
	if !more {
		t.Fatalf("handleLine(%s) quit", l)
	}
	return strings.TrimSpace(b.String())
}

func TestCommands(t *testing.T) {
	b := newTestServer(t)
	s := b.s
	tests := []struct {
		line string
		want string
	}{
		{"CLOCKS", s.sc.Clocks().String()},
		{"freq cpu0", sysctl.Hertz(360000000).String()},
		{"FREQ AHB", sysctl.Hertz(180000000).String()},
		{"FREQ PLL1CLK2", sysctl.Hertz(500000000).String()},
		{"FREQ URT7", sysctl.Hertz(24000000).String()},
		{"FREQ NOPE", "ERR: "},
		{"FREQ", "ERR: "},
		{"GROUP DAC1 0", "OK"},
		{"GROUP DAC1 1", "ERR: "},
		{"GROUP FOO 0", "ERR: "},
		{"ANA DAC0 PLL0CLK2 4", sysctl.Hertz(100000000).String()},
		{"ANA DAC0 PLL0CLK2 257", "ERR: "},
		{"ANA DAC0 PLL9CLK0 1", "ERR: "},
		{"ANA DAC0 AHB", sysctl.Hertz(180000000).String()},
		{"ANA DAC7 AHB", "ERR: "},
		{"MODE", "OFF"},
		{"DAC 2047", "OK"},
		{"DAC 4096", "ERR: "},
		{"DAC x", "ERR: "},
		{"MODE", "DIRECT"},
		{"", ""},
		{"BOGUS", "ERR: "},
	}
	for _, test := range tests {
		got := run(t, s, test.line)
		if test.want == "ERR: " {
			if !strings.HasPrefix(got, "ERR: ") {
				t.Errorf("%q, got: %q, want an error", test.line, got)
			}
			continue
		}
		if got != test.want {
			t.Errorf("%q, got: %q, want: %q", test.line, got, test.want)
		}
	}
	r, _ := s.sc.Variant().Resource("DAC1")
	if !b.sc.Linked(r, 0) {
		t.Errorf("GROUP didn't link DAC1")
	}
	if got := s.d.Value(); got != 2047 {
		t.Errorf("DAC value, got: %d, want: 2047", got)
	}
}

func TestWave(t *testing.T) {
	b := newTestServer(t)
	s := b.s
	stop := b.ds.Serve(time.Millisecond)
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, l := range []string{"WAVE SINE 10", "WAVE NOISE 1000", "WAVE SINE 1kHz 5000", "WAVE SINE"} {
		if got := run(t, s, l); !strings.HasPrefix(got, "ERR: ") {
			t.Errorf("%q, got: %q, want an error", l, got)
		}
	}
	got := run(t, s, "WAVE triangle 1kHz 1000 2000")
	if !strings.HasPrefix(got, "TRIANGLE") || !strings.Contains(got, "100 samples") {
		t.Fatalf("WAVE, got: %q", got)
	}
	if got := run(t, s, "MODE"); got != "TRIANGLE" {
		t.Errorf("MODE, got: %q, want: TRIANGLE", got)
	}
	if got := s.d.Mode(); got != dac.BUFFER {
		t.Errorf("DAC mode, got: %d, want: %d", got, dac.BUFFER)
	}
	if got := s.d.OutputFrequency(); got != 100000 {
		t.Errorf("DAC output frequency, got: %d, want: 100000", got)
	}

	ch := s.ch.Degrade()
	for ch.CompleteCount() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("Timed out waiting for periods, got %d", ch.CompleteCount())
		case <-time.After(time.Millisecond):
		}
	}
	if !ch.IsRunning() {
		t.Errorf("Circular wave stopped")
	}

	if got := run(t, s, "STOP"); got != "OK" {
		t.Errorf("STOP, got: %q", got)
	}
	if ch.IsRunning() {
		t.Errorf("Wave still running after STOP")
	}
	if got := run(t, s, "MODE"); got != "DIRECT" {
		t.Errorf("MODE after STOP, got: %q, want: DIRECT", got)
	}
	if got := run(t, s, "STOP"); got != "OK" {
		t.Errorf("Second STOP, got: %q", got)
	}
}

func TestWaveRestart(t *testing.T) {
	b := newTestServer(t)
	s := b.s
	if got := run(t, s, "WAVE SINE 1kHz"); !strings.HasPrefix(got, "SINE") {
		t.Fatalf("First WAVE, got: %q", got)
	}
	ch := s.ch.Degrade()
	var running []bool
	s.d.Regs().OnStore(dac.DAC_CFG1, func(_, v uint32) uint32 {
		running = append(running, ch.IsRunning())
		return v
	})
	if got := run(t, s, "WAVE SQUARE 2kHz"); !strings.HasPrefix(got, "SQUARE") || !strings.Contains(got, "50 samples") {
		t.Fatalf("Second WAVE, got: %q", got)
	}
	if len(running) == 0 {
		t.Fatalf("Second WAVE didn't touch the divider")
	}
	for i, r := range running {
		if r {
			t.Errorf("Divider store %d while the previous wave was streaming", i)
		}
	}
	if !ch.IsRunning() {
		t.Errorf("Second wave isn't running")
	}
}

func TestConnection(t *testing.T) {
	b := newTestServer(t)
	go b.s.handleConnections()
	c, err := net.Dial("tcp", b.s.l.Addr().String())
	if err != nil {
		t.Fatalf("Failed Dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(c)
	for _, test := range []struct {
		line string
		want string
	}{
		{"DAC 100\n", "OK\n"},
		{"MODE\n", "DIRECT\n"},
	} {
		c.Write([]byte(test.line))
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed reading reply to %q: %v", test.line, err)
		}
		if got != test.want {
			t.Errorf("%q, got: %q, want: %q", test.line, got, test.want)
		}
	}
	c.Write([]byte("QUIT\n"))
	if _, err := r.ReadString('\n'); err == nil {
		t.Errorf("Connection still open after QUIT")
	}
}

func TestPllConfig(t *testing.T) {
	v, err := sysctl.Lookup("hpm53")
	if err != nil {
		t.Fatalf("Failed Lookup: %v", err)
	}
	p := pllConfig(v, 720000000)
	want := []uint8{0, 1, 4}
	if len(p.Div) != len(want) {
		t.Fatalf("Dividers, got: %v, want: %v", p.Div, want)
	}
	for i := range want {
		if p.Div[i] != want[i] {
			t.Errorf("Divider %d, got: %d, want: %d", i, p.Div[i], want[i])
		}
	}
}
