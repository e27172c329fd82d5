// Package dac drives the 12-bit DACs: direct output, the hardware step generator, and sample
// streams fed by DMA.
package dac

import (
	"context"
	"fmt"
	"log"

	"github.com/Jon-Bright/hpmctl/dma"
	"github.com/Jon-Bright/hpmctl/regs"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

const (
	DAC_SIZE = 0x100

	DAC_CFG0     = uintptr(0x000)
	DAC_CFG1     = uintptr(0x004)
	DAC_CFG2     = uintptr(0x008)
	DAC_STEP_CFG = uintptr(0x010)
	DAC_ANA_CFG0 = uintptr(0x040)
	DAC_CFG0_BAK = uintptr(0x050)

	CFG0_SW_DAC_DATA = 16
	CFG0_DATA_WIDTH  = 12
	CFG0_SYNC_MODE   = uint32(1 << 8)
	CFG0_HW_TRIG_EN  = uint32(1 << 7)
	CFG0_DAC_MODE    = 4
	CFG0_MODE_WIDTH  = 2

	CFG1_ANA_CLK_EN    = uint32(1 << 18)
	CFG1_ANA_DIV_CFG   = 16
	CFG1_ANA_DIV_WIDTH = 2
	CFG1_DIV_CFG_WIDTH = 16

	STEP_ROUND_MODE  = uint32(1 << 29)
	STEP_UP_DOWN     = uint32(1 << 28)
	STEP_END_POINT   = 16
	STEP_STEP_NUM    = 12
	STEP_START_POINT = 0

	ANA_CFG0_DAC12BIT_EN = uint32(1 << 4)

	MAX_DATA     = 4095
	MAX_FREQ     = sysctl.Hertz(1000000)
	MAX_DIV      = 0xFFFF
	STEP_CONFIGS = 4
)

type Mode uint32

const (
	DIRECT Mode = iota
	STEP
	BUFFER
	TRIG
)

// AnaDiv divides the analog clock before the output divider.
type AnaDiv uint32

const (
	DIV2 AnaDiv = iota
	DIV4
	DIV6
	DIV8
)

func (d AnaDiv) Divisor() uint32 {
	return 2 * (uint32(d) + 1)
}

type Config struct {
	Mode     Mode
	SyncMode bool
	AnaDiv   AnaDiv
	// AnaClock, if set, moves the DAC from AHB onto its analog clock node.
	AnaClock *sysctl.ClockConfig
}

func DefaultConfig() Config {
	return Config{Mode: DIRECT, AnaDiv: DIV2}
}

// StepConfig describes one of the hardware ramps. Step is the code increment per output clock.
type StepConfig struct {
	Reload bool // start over at Start after reaching End
	Down   bool
	Start  uint16
	End    uint16
	Step   uint8
}

func stepConfig(reload bool, start, end uint16, step int8) StepConfig {
	if step < 0 {
		return StepConfig{Reload: reload, Down: true, Start: start, End: end, Step: uint8(-step)}
	}
	return StepConfig{Reload: reload, Start: start, End: end, Step: uint8(step)}
}

// OneShot ramps from start to end once. A negative step ramps down.
func OneShot(start, end uint16, step int8) StepConfig {
	return stepConfig(false, start, end, step)
}

// Continuous ramps from start to end over and over.
func Continuous(start, end uint16, step int8) StepConfig {
	return stepConfig(true, start, end, step)
}

type DAC struct {
	sc   *sysctl.Controller
	a    sysctl.AnalogPeripheral
	regs *regs.Block
}

// New takes the DAC's resource into group 0 and moves it onto its analog clock before touching
// any of its registers, then brings it up in cfg.Mode with the output at 0.
func New(sc *sysctl.Controller, a sysctl.AnalogPeripheral, b *regs.Block, cfg Config) *DAC {
	if a.Kind != sysctl.DAC {
		panic(fmt.Sprintf("dac: %s isn't a DAC", a.Name))
	}
	sc.EnablePeripheral(a.Peripheral(), 0)
	if cfg.AnaClock != nil {
		sc.SetAnaClock(a, *cfg.AnaClock)
	}

	d := &DAC{sc: sc, a: a, regs: b}
	b.SetField(DAC_CFG0_BAK, CFG0_SW_DAC_DATA, CFG0_DATA_WIDTH, 0)
	if cfg.SyncMode {
		b.SetBits(DAC_CFG0_BAK, CFG0_SYNC_MODE)
	} else {
		b.ClearBits(DAC_CFG0_BAK, CFG0_SYNC_MODE)
	}
	b.SetField(DAC_CFG0_BAK, CFG0_DAC_MODE, CFG0_MODE_WIDTH, uint32(cfg.Mode))
	d.refresh()

	b.SetField(DAC_CFG1, CFG1_ANA_DIV_CFG, CFG1_ANA_DIV_WIDTH, uint32(cfg.AnaDiv))
	b.SetBits(DAC_CFG1, CFG1_ANA_CLK_EN)
	return d
}

// Open maps the named DAC from /dev/mem and brings it up.
func Open(sc *sysctl.Controller, name string, cfg Config) (*DAC, error) {
	a, ok := sc.Variant().AnalogPeripheral(name)
	if !ok || a.Kind != sysctl.DAC {
		return nil, fmt.Errorf("%s has no DAC %s", sc.Variant().Name, name)
	}
	b, err := regs.Map(a.Base, DAC_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't map %s: %v", name, err)
	}
	d := New(sc, a, b, cfg)
	log.Printf("Got %s at %08X, clock %v", name, a.Base, d.ClockFreq())
	return d, nil
}

func (d *DAC) Close() error {
	return d.regs.Close()
}

func (d *DAC) Name() string {
	return d.a.Name
}

// refresh copies the shadow configuration into CFG0, which is what the hardware acts on.
func (d *DAC) refresh() {
	d.regs.Set(DAC_CFG0, d.regs.Get(DAC_CFG0_BAK))
}

func (d *DAC) Enable(enable bool) {
	if enable {
		d.regs.SetBits(DAC_ANA_CFG0, ANA_CFG0_DAC12BIT_EN)
	} else {
		d.regs.ClearBits(DAC_ANA_CFG0, ANA_CFG0_DAC12BIT_EN)
	}
}

func (d *DAC) Enabled() bool {
	return d.regs.HasBits(DAC_ANA_CFG0, ANA_CFG0_DAC12BIT_EN)
}

// SetValue sets the output in direct mode. Values above 4095 panic.
func (d *DAC) SetValue(v uint16) {
	if v > MAX_DATA {
		panic(fmt.Sprintf("dac: value %d out of range", v))
	}
	d.regs.SetField(DAC_CFG0_BAK, CFG0_SW_DAC_DATA, CFG0_DATA_WIDTH, uint32(v))
	d.refresh()
}

func (d *DAC) Value() uint16 {
	return uint16(d.regs.Field(DAC_CFG0_BAK, CFG0_SW_DAC_DATA, CFG0_DATA_WIDTH))
}

func (d *DAC) SetMode(m Mode) {
	d.regs.SetField(DAC_CFG0_BAK, CFG0_DAC_MODE, CFG0_MODE_WIDTH, uint32(m))
	d.refresh()
}

func (d *DAC) Mode() Mode {
	return Mode(d.regs.Field(DAC_CFG0, CFG0_DAC_MODE, CFG0_MODE_WIDTH))
}

// ClockFreq is the DAC's input clock after the analog divider.
func (d *DAC) ClockFreq() sysctl.Hertz {
	div := AnaDiv(d.regs.Field(DAC_CFG1, CFG1_ANA_DIV_CFG, CFG1_ANA_DIV_WIDTH))
	return d.sc.AnalogFrequency(d.a) / sysctl.Hertz(div.Divisor())
}

// MinFrequency is the slowest output rate the divider can reach.
func (d *DAC) MinFrequency() sysctl.Hertz {
	return d.ClockFreq() / MAX_DIV
}

// ConfigureOutputFrequency sets the rate at which step and buffer modes emit samples.
func (d *DAC) ConfigureOutputFrequency(f sysctl.Hertz) error {
	if f == 0 || f > MAX_FREQ {
		return fmt.Errorf("output frequency %v outside (0, %v]", f, MAX_FREQ)
	}
	clk := d.ClockFreq()
	div := clk / f
	if div == 0 || div > MAX_DIV {
		return fmt.Errorf("output frequency %v needs divider %d from %v", f, div, clk)
	}
	d.regs.SetField(DAC_CFG1, 0, CFG1_DIV_CFG_WIDTH, uint32(div))
	log.Printf("%s output %v, clock %v / %d", d.a.Name, f, clk, div)
	return nil
}

func (d *DAC) OutputFrequency() sysctl.Hertz {
	div := d.regs.Field(DAC_CFG1, 0, CFG1_DIV_CFG_WIDTH)
	if div == 0 {
		return 0
	}
	return d.ClockFreq() / sysctl.Hertz(div)
}

// ConfigureStep programs ramp idx (0..3). Steps above 15 codes panic.
func (d *DAC) ConfigureStep(idx int, cfg StepConfig) {
	if idx < 0 || idx >= STEP_CONFIGS {
		panic(fmt.Sprintf("dac: step config %d out of range", idx))
	}
	if cfg.Step >= 16 || cfg.Start > MAX_DATA || cfg.End > MAX_DATA {
		panic(fmt.Sprintf("dac: invalid step config %+v", cfg))
	}
	v := uint32(cfg.End)<<STEP_END_POINT | uint32(cfg.Step)<<STEP_STEP_NUM | uint32(cfg.Start)<<STEP_START_POINT
	if cfg.Reload {
		v |= STEP_ROUND_MODE
	}
	if cfg.Down {
		v |= STEP_UP_DOWN
	}
	d.regs.Set(DAC_STEP_CFG+uintptr(idx)*4, v)
}

// TriggerStep starts ramp idx from software, disabling the hardware trigger.
func (d *DAC) TriggerStep(idx int) {
	if idx < 0 || idx >= STEP_CONFIGS {
		panic(fmt.Sprintf("dac: step config %d out of range", idx))
	}
	d.regs.ClearBits(DAC_CFG0_BAK, CFG0_HW_TRIG_EN)
	d.refresh()
	d.regs.SetBits(DAC_CFG2, 1<<uint(idx))
}

// StartBuffered streams buf into the output register, one 32-bit word per DAC request. buf holds
// codes (0..4095); they're rewritten in place into complete CFG0 words first. The caller owns the
// returned Transfer and must Close it.
func (d *DAC) StartBuffered(ch dma.Channel, request uint8, buf dma.Buffer, circular bool) *dma.Transfer {
	words := dma.Uint32Slice(buf)
	base := d.regs.Get(DAC_CFG0_BAK) &^ ((1<<CFG0_DATA_WIDTH - 1) << CFG0_SW_DAC_DATA)
	for i, w := range words {
		if w > MAX_DATA {
			panic(fmt.Sprintf("dac: sample %d is %d, out of range", i, w))
		}
		words[i] = base | w<<CFG0_SW_DAC_DATA
	}
	opts := dma.DefaultOptions()
	opts.Handshake = dma.Destination
	opts.Circular = circular
	return dma.NewWrite(ch, request, buf, uint32(d.regs.Base()+DAC_CFG0), dma.FourBytes, opts)
}

// WriteBuffered plays buf once and returns when the last sample has been written.
func (d *DAC) WriteBuffered(ctx context.Context, ch dma.Channel, request uint8, buf dma.Buffer) error {
	t := d.StartBuffered(ch, request, buf, false)
	defer t.Close()
	err := t.Wait(ctx)
	if err != nil {
		return fmt.Errorf("couldn't finish %s buffer: %v", d.a.Name, err)
	}
	return nil
}
