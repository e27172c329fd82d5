package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Jon-Bright/hpmctl/dac"
	"github.com/Jon-Bright/hpmctl/dma"
	"github.com/Jon-Bright/hpmctl/sysctl"
	"github.com/Jon-Bright/hpmctl/wave"
)

var chip = flag.String("chip", "hpm53", "The part to drive: one of hpm53, hpm6e, hpm63, hpm67, hpm68")
var sim = flag.Bool("sim", false, "Run against simulated registers instead of /dev/mem")
var pll0 = flag.String("pll0", "", "PLL0 VCO frequency, e.g. 720MHz. Empty leaves PLL0 as it is")
var cpu0Div = flag.Int("cpu0div", 0, "Divider from the CPU0 clock source. 0 keeps the part's default")
var ahbDiv = flag.Int("ahbdiv", 0, "Divider for the AHB clock. 0 keeps the part's default")
var port = flag.Int("port", 24602, "The port that the server should listen to")
var dacName = flag.String("dac", "DAC0", "The DAC driven by the DAC and WAVE commands")
var dacDma = flag.Int("dacdma", 0, "The HDMA channel feeding the DAC in buffered mode")
var dacReq = flag.Uint("dacreq", 48, "The DMAMUX request line of the DAC")
var rate = flag.String("rate", "100kHz", "The sample rate for WAVE, at most 1MHz")
var spinLimit = flag.Int("spinlimit", 0, "Panic if a clock busy-wait takes more than this many polls. 0 waits forever")

const MAX_SAMPLES = 4096

type Server struct {
	sc    *sysctl.Controller
	d     *dac.DAC // nil if the part has none
	ch    dma.Channel
	req   uint8
	rate  sysctl.Hertz
	alloc func(size int) (dma.Buffer, error)
	l     net.Listener

	mu   sync.Mutex
	t    *dma.Transfer
	buf  dma.Buffer
	last wave.Waveform
}

func NewServer(port int, sc *sysctl.Controller, d *dac.DAC, ch dma.Channel, req uint8, rate sysctl.Hertz, alloc func(int) (dma.Buffer, error)) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	log.Printf("Listening on port %d", port)
	return &Server{sc: sc, d: d, ch: ch, req: req, rate: rate, alloc: alloc, l: l}, nil
}

// parseFreq accepts a bare number of Hz as well as "20kHz".
func parseFreq(s string) (sysctl.Hertz, error) {
	if _, err := strconv.ParseUint(s, 10, 32); err == nil {
		s += "Hz"
	}
	return sysctl.ParseHertz(s)
}

func parseInt(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%d outside [%d, %d]", n, min, max)
	}
	return n, nil
}

func (s *Server) freq(name string) (sysctl.Hertz, error) {
	v := s.sc.Variant()
	switch name {
	case "CPU0", "CPU1":
		cpu := int(name[3] - '0')
		if cpu >= v.Cores {
			return 0, fmt.Errorf("%s has no %s", v.Name, name)
		}
		return s.sc.CPUClockFreq(cpu), nil
	case "AHB":
		return s.sc.Clocks().AHB, nil
	case "AXI":
		return s.sc.Clocks().AXI, nil
	}
	if p, ok := v.Peripheral(name); ok {
		return s.sc.PeripheralFreq(p), nil
	}
	if c, ok := v.Clock(name); ok {
		return s.sc.ClockFreq(c), nil
	}
	if m, ok := v.Mux(name); ok {
		return s.sc.Clocks().Of(m), nil
	}
	return 0, fmt.Errorf("unknown clock %s", name)
}

// stopWave ends any running buffered output. Callers hold s.mu.
func (s *Server) stopWave() {
	if s.t == nil {
		return
	}
	s.t.Close()   // Ignore error
	s.buf.Close() // Ignore error
	log.Printf("Stopped %s after %d periods", s.last.Name(), s.t.Channel().CompleteCount())
	s.t = nil
	s.buf = nil
}

func (s *Server) startWave(w wave.Waveform, f sysctl.Hertz) (string, error) {
	if f == 0 {
		return "", fmt.Errorf("zero frequency")
	}
	n := int(s.rate / f)
	if n < 2 || n > MAX_SAMPLES {
		return "", fmt.Errorf("%v at %v needs %d samples, want 2..%d", f, s.rate, n, MAX_SAMPLES)
	}
	buf, err := s.alloc(n * 4)
	if err != nil {
		return "", fmt.Errorf("couldn't allocate %d samples: %v", n, err)
	}
	s.stopWave()
	err = s.d.ConfigureOutputFrequency(f * sysctl.Hertz(n))
	if err != nil {
		buf.Close() // Ignore error
		return "", err
	}
	w.Fill(dma.Uint32Slice(buf))
	s.d.SetMode(dac.BUFFER)
	s.d.Enable(true)
	s.t = s.d.StartBuffered(s.ch, s.req, buf, true)
	s.buf = buf
	s.last = w
	return fmt.Sprintf("%s %v, %d samples at %v", w.Name(), s.d.OutputFrequency()/sysctl.Hertz(n), n, s.d.OutputFrequency()), nil
}

// command runs one command. A non-empty reply is sent instead of "OK".
func (s *Server) command(cmd string, parms []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.sc.Variant()
	switch cmd {
	case "CLOCKS":
		return s.sc.Clocks().String(), nil
	case "FREQ":
		if len(parms) != 1 {
			return "", fmt.Errorf("FREQ wants a clock name")
		}
		f, err := s.freq(strings.ToUpper(parms[0]))
		if err != nil {
			return "", err
		}
		return f.String(), nil
	case "GROUP":
		if len(parms) != 2 {
			return "", fmt.Errorf("GROUP wants a resource and a group")
		}
		r, ok := v.Resource(strings.ToUpper(parms[0]))
		if !ok {
			return "", fmt.Errorf("%s has no resource %s", v.Name, parms[0])
		}
		g, err := parseInt(parms[1], 0, v.Groups-1)
		if err != nil {
			return "", fmt.Errorf("error parsing group: %v", err)
		}
		s.sc.AddToGroup(r, g)
		return "", nil
	case "ANA":
		if len(parms) < 2 {
			return "", fmt.Errorf("ANA wants a peripheral and AHB or a source and divider")
		}
		a, ok := v.AnalogPeripheral(strings.ToUpper(parms[0]))
		if !ok {
			return "", fmt.Errorf("%s has no analog peripheral %s", v.Name, parms[0])
		}
		src := strings.ToUpper(parms[1])
		if src == "AHB" {
			s.sc.SetAHBClock(a)
			return s.sc.AnalogFrequency(a).String(), nil
		}
		if len(parms) != 3 {
			return "", fmt.Errorf("ANA %s wants a divider", src)
		}
		m, ok := v.Mux(src)
		if !ok {
			return "", fmt.Errorf("%s has no clock source %s", v.Name, src)
		}
		div, err := parseInt(parms[2], 1, 256)
		if err != nil {
			return "", fmt.Errorf("error parsing divider: %v", err)
		}
		s.sc.SetAnaClock(a, sysctl.NewClockConfig(m, div))
		return s.sc.AnalogFrequency(a).String(), nil
	case "DAC":
		if s.d == nil {
			return "", fmt.Errorf("no DAC")
		}
		if len(parms) != 1 {
			return "", fmt.Errorf("DAC wants a value")
		}
		n, err := parseInt(parms[0], 0, dac.MAX_DATA)
		if err != nil {
			return "", fmt.Errorf("error parsing value: %v", err)
		}
		s.stopWave()
		s.d.SetMode(dac.DIRECT)
		s.d.SetValue(uint16(n))
		s.d.Enable(true)
		return "", nil
	case "WAVE":
		if s.d == nil {
			return "", fmt.Errorf("no DAC")
		}
		if len(parms) < 2 || len(parms) > 4 {
			return "", fmt.Errorf("WAVE wants a shape, a frequency and optionally amplitude and offset")
		}
		f, err := parseFreq(parms[1])
		if err != nil {
			return "", fmt.Errorf("error parsing frequency: %v", err)
		}
		l := wave.DefaultLevel()
		if len(parms) > 2 {
			l.Amplitude, err = parseInt(parms[2], 0, dac.MAX_DATA)
			if err != nil {
				return "", fmt.Errorf("error parsing amplitude: %v", err)
			}
		}
		if len(parms) > 3 {
			l.Offset, err = parseInt(parms[3], 0, dac.MAX_DATA)
			if err != nil {
				return "", fmt.Errorf("error parsing offset: %v", err)
			}
		}
		w, err := wave.ByName(parms[0], l)
		if err != nil {
			return "", err
		}
		return s.startWave(w, f)
	case "STOP":
		s.stopWave()
		return "", nil
	case "MODE":
		if s.d == nil || !s.d.Enabled() {
			return "OFF", nil
		}
		if s.t != nil {
			return s.last.Name(), nil
		}
		return "DIRECT", nil
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

// handleLine runs one protocol line and writes its reply. It returns false on QUIT.
func (s *Server) handleLine(l string, w *bufio.Writer) (bool, error) {
	l = strings.TrimSpace(l)
	if l == "" {
		return true, nil
	}
	log.Printf("Got line '%s'", l)
	t := strings.Fields(l)
	cmd := strings.ToUpper(t[0])
	if cmd == "QUIT" {
		return false, nil
	}
	r, err := s.command(cmd, t[1:])
	if err != nil {
		es := fmt.Sprintf("Error running %s: %v", cmd, err)
		log.Print(es)
		r = "ERR: " + es
	} else if r == "" {
		r = "OK"
	}
	w.WriteString(r + "\n")
	return true, w.Flush()
}

func (s *Server) handleConnection(c net.Conn) {
	log.Printf("Handling connection from %v", c.RemoteAddr())
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		l, err := r.ReadString('\n')
		if err == io.EOF {
			log.Printf("EOF for connection %v", c.RemoteAddr())
			return
		}
		if err != nil {
			log.Printf("Error reading string for connection %v: %v", c.RemoteAddr(), err)
			return
		}
		more, err := s.handleLine(l, w)
		if err != nil {
			log.Printf("error writing reply: %v", err)
			return
		}
		if !more {
			return
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	s.stopWave()
	s.mu.Unlock()
	return s.l.Close()
}

// pllConfig sets PLL0 to f, keeping each post-divider's power-on ratio.
func pllConfig(v *sysctl.Variant, f sysctl.Hertz) *sysctl.Pll {
	on := v.PowerOn.Pll[0]
	p := &sysctl.Pll{FreqIn: f, Div: make([]uint8, len(on))}
	for i, out := range on {
		// out = fvco*5/(raw+5)
		p.Div[i] = uint8((5*uint64(on[0])+uint64(out)/2)/uint64(out) - 5)
	}
	return p
}

func clockConfig(v *sysctl.Variant) (sysctl.Config, error) {
	cfg := v.DefaultConfig()
	if *pll0 != "" {
		f, err := parseFreq(*pll0)
		if err != nil {
			return cfg, fmt.Errorf("couldn't parse -pll0: %v", err)
		}
		if len(cfg.Pll) == 0 {
			cfg.Pll = make([]*sysctl.Pll, len(v.PllDivs))
		}
		cfg.Pll[0] = pllConfig(v, f)
	}
	if *cpu0Div != 0 {
		if cfg.CPU0 == nil {
			return cfg, fmt.Errorf("%s has no CPU0 clock to divide", v.Name)
		}
		cc := sysctl.NewClockConfig(cfg.CPU0.Src, *cpu0Div)
		cfg.CPU0 = &cc
	}
	if *ahbDiv != 0 {
		switch {
		case v.CPUSubDivs:
			if *ahbDiv > 16 {
				return cfg, fmt.Errorf("AHB sub-divider %d above 16", *ahbDiv)
			}
			cfg.AHBDiv = sysctl.Divider(*ahbDiv - 1)
		case cfg.AHB != nil:
			cc := sysctl.NewClockConfig(cfg.AHB.Src, *ahbDiv)
			cfg.AHB = &cc
		default:
			return cfg, fmt.Errorf("%s has no AHB clock to divide", v.Name)
		}
	}
	return cfg, nil
}

func main() {
	flag.Parse()
	v, err := sysctl.Lookup(*chip)
	if err != nil {
		log.Fatalf("Failed finding chip: %v", err)
	}
	cfg, err := clockConfig(v)
	if err != nil {
		log.Fatalf("Failed building clock config: %v", err)
	}
	sr, err := parseFreq(*rate)
	if err != nil || sr == 0 || sr > dac.MAX_FREQ {
		log.Fatalf("Invalid sample rate %q: %v", *rate, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sc *sysctl.Controller
	var ssim *sysctl.Sim
	if *sim {
		ssim, err = sysctl.NewSim(v)
		if err != nil {
			log.Fatalf("Failed creating simulated sysctl: %v", err)
		}
		sc = ssim.Controller
	} else {
		sc, err = sysctl.Open(v)
		if err != nil {
			log.Fatalf("Failed opening sysctl: %v", err)
		}
	}
	sc.SpinLimit = *spinLimit
	err = sysctl.Init(sc, cfg)
	if err != nil {
		log.Fatalf("Failed clock init: %v", err)
	}

	var hdma *dma.Controller
	var dsim *dma.Sim
	alloc := dma.AllocBuffer
	if *sim {
		dsim, err = dma.NewSim(sc, dma.HDMA)
		if err != nil {
			log.Fatalf("Failed creating simulated HDMA: %v", err)
		}
		hdma = dsim.Controller
		alloc = func(size int) (dma.Buffer, error) { return dsim.NewBuffer(size), nil }
		go dsim.Run(ctx, 10*time.Microsecond)
	} else {
		hdma, err = dma.Open(sc, dma.HDMA)
		if err != nil {
			log.Fatalf("Failed opening HDMA: %v", err)
		}
	}
	go func() {
		err := hdma.ServeIRQ(ctx, time.Millisecond)
		if err != nil && err != context.Canceled {
			log.Fatalf("Failed serving HDMA IRQ: %v", err)
		}
	}()
	if *dacDma < 0 || *dacDma >= hdma.Channels() {
		log.Fatalf("Invalid DAC DMA channel %d, %s has %d", *dacDma, hdma.Kind(), hdma.Channels())
	}

	var d *dac.DAC
	if _, ok := v.AnalogPeripheral(*dacName); ok {
		if *sim {
			d, err = dac.NewSim(ssim, *dacName, dac.DefaultConfig())
			if err == nil {
				dsim.Attach(d.Regs())
			}
		} else {
			d, err = dac.Open(sc, *dacName, dac.DefaultConfig())
		}
		if err != nil {
			log.Fatalf("Failed creating %s: %v", *dacName, err)
		}
	} else {
		log.Printf("%s has no %s, DAC and WAVE disabled", v.Name, *dacName)
	}

	s, err := NewServer(*port, sc, d, hdma.Channel(*dacDma), uint8(*dacReq), sr, alloc)
	if err != nil {
		log.Fatalf("Failed creating server: %v", err)
	}
	if *console != "" {
		c, err := openConsole(*console, s)
		if err != nil {
			log.Fatalf("Failed opening console: %v", err)
		}
		defer c.Close()
		go c.run()
	}
	s.handleConnections()
}
