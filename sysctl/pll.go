package sysctl

import (
	"fmt"
	"log"
)

const (
	PLL_REF_FREQ   = 24000000
	PLL_MFI_MIN    = 16
	PLL_MFI_MAX    = 42
	PLL_FREQ_MIN   = PLL_REF_FREQ * PLL_MFI_MIN       // min MFI, MFN = 0
	PLL_FREQ_MAX   = PLL_REF_FREQ * (PLL_MFI_MAX + 1) // exclusive
	PLL_MFN_FACTOR = 10
	PLL_MFD        = 240000000.0 // power-on MFD, never reprogrammed
)

// PLLCTL register layout, v2.
const (
	PLLCTL_SIZE       = 0x1000
	PLLCTL_XTAL       = uintptr(0x0000)
	PLLCTL_PLL        = uintptr(0x0080)
	PLLCTL_PLL_STRIDE = uintptr(0x0080)
	PLL_MFI           = uintptr(0x00)
	PLL_MFN           = uintptr(0x04)
	PLL_DIV           = uintptr(0x40)

	PLL_BUSY          = uint32(1 << 31)
	PLL_ENABLE        = uint32(1 << 28)
	PLL_MFI_WIDTH     = 7
	PLL_MFN_WIDTH     = 30
	PLL_DIV_WIDTH     = 6
	XTAL_RAMP_WIDTH   = 20
	XTAL_RAMP_CYCLES  = 32 * 1000 * 9 // ~9ms of the 32kHz RC
)

func pllOffset(pll int, reg uintptr) uintptr {
	return PLLCTL_PLL + uintptr(pll)*PLLCTL_PLL_STRIDE + reg
}

func pllDivOffset(pll, div int) uintptr {
	return pllOffset(pll, PLL_DIV) + uintptr(div)*4
}

// Pll describes the VCO frequency wanted from one PLL and the raw values of its post-dividers
// (PLLxCLK0, PLLxCLK1, ...). The number of dividers depends on the PLL.
type Pll struct {
	FreqIn Hertz
	Div    []uint8
}

// Params computes the MFI and MFN fields for p.FreqIn. ok is false if the frequency is outside
// what the PLL can lock to, [16*24MHz, 43*24MHz).
func (p Pll) Params() (mfi uint8, mfn uint32, ok bool) {
	f := uint32(p.FreqIn)
	if f < PLL_FREQ_MIN || f >= PLL_FREQ_MAX {
		return 0, 0, false
	}
	return uint8(f / PLL_REF_FREQ), (f % PLL_REF_FREQ) * PLL_MFN_FACTOR, true
}

// OutputFreq is the VCO frequency the PLL runs at with the given fields programmed.
func OutputFreq(mfi uint8, mfn uint32) uint64 {
	fvco := float64(PLL_REF_FREQ) * (float64(mfi) + float64(mfn)/PLL_MFD)
	return uint64(fvco)
}

// PostDivFreq applies a post-divider. The divider's raw value r divides by (r+5)/5, not r+1.
func PostDivFreq(fvco uint64, raw uint8) uint64 {
	return fvco * 5 / (uint64(raw) + 5)
}

// ParamsError returns how far the VCO frequency read back from the fields Params computes is
// from the frequency asked for. Positive means the PLL runs slower than requested.
func (p Pll) ParamsError() (int64, bool) {
	mfi, mfn, ok := p.Params()
	if !ok {
		return 0, false
	}
	return int64(p.FreqIn) - int64(OutputFreq(mfi, mfn)), true
}

func (c *Controller) pllFreq(pll int) uint64 {
	mfi := uint8(c.pllctl.Field(pllOffset(pll, PLL_MFI), 0, PLL_MFI_WIDTH))
	mfn := c.pllctl.Field(pllOffset(pll, PLL_MFN), 0, PLL_MFN_WIDTH)
	return OutputFreq(mfi, mfn)
}

// programPll writes the MFI/MFN fields and post-dividers of one PLL and returns the resulting
// output frequencies. The update latch only triggers on an MFI change, so an unchanged MFI is
// first stepped down by one.
func (c *Controller) programPll(n int, p *Pll) ([]Hertz, error) {
	if n >= len(c.v.PllDivs) {
		return nil, fmt.Errorf("%s has no PLL%d", c.v.Name, n)
	}
	ndiv := c.v.PllDivs[n]
	if len(p.Div) != ndiv {
		return nil, fmt.Errorf("PLL%d needs %d post-dividers, got %d", n, ndiv, len(p.Div))
	}
	mfi, mfn, ok := p.Params()
	if !ok {
		return nil, fmt.Errorf("PLL%d frequency %v outside [%v, %v)", n, p.FreqIn, Hertz(PLL_FREQ_MIN), Hertz(PLL_FREQ_MAX))
	}

	mfiReg := pllOffset(n, PLL_MFI)
	c.spin(fmt.Sprintf("PLL%d", n), func() bool { return c.pllctl.HasBits(mfiReg, PLL_BUSY) })
	if uint8(c.pllctl.Field(mfiReg, 0, PLL_MFI_WIDTH)) == mfi {
		c.pllctl.SetField(mfiReg, 0, PLL_MFI_WIDTH, uint32(mfi-1))
	}
	c.pllctl.SetField(mfiReg, 0, PLL_MFI_WIDTH, uint32(mfi))
	c.pllctl.Set(pllOffset(n, PLL_MFN), mfn)
	c.spin(fmt.Sprintf("PLL%d", n), func() bool { return c.pllctl.HasBits(mfiReg, PLL_BUSY) })

	fvco := c.pllFreq(n)

	for i, d := range p.Div {
		c.pllctl.Set(pllDivOffset(n, i), PLL_ENABLE|uint32(d)&(1<<PLL_DIV_WIDTH-1))
	}
	c.spin(fmt.Sprintf("PLL%d dividers", n), func() bool {
		for i := range p.Div {
			if c.pllctl.HasBits(pllDivOffset(n, i), PLL_BUSY) {
				return true
			}
		}
		return false
	})

	out := make([]Hertz, ndiv)
	for i := range out {
		raw := uint8(c.pllctl.Field(pllDivOffset(n, i), 0, PLL_DIV_WIDTH))
		out[i] = Hertz(PostDivFreq(fvco, raw))
	}
	log.Printf("PLL%d programmed, mfi %d mfn %d, fvco %v, outputs %v", n, mfi, mfn, Hertz(fvco), out)
	return out, nil
}
