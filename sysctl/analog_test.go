package sysctl

import (
	"testing"
)

func TestSetAnaClockOrder(t *testing.T) {
	s := newTestSim(t, "hpm53")
	v := s.Variant()
	a, ok := v.AnalogPeripheral("DAC0")
	if !ok {
		t.Fatalf("No DAC0")
	}
	node := clockOffset(v.MustClock(a.AnaClock))

	var order []string
	s.Sysctl.OnStore(node, func(old, v uint32) uint32 {
		order = append(order, "node")
		return v &^ (CLOCK_GLB_BUSY | CLOCK_LOC_BUSY)
	})
	s.Sysctl.OnStore(a.localOffset(), func(old, v uint32) uint32 {
		order = append(order, "mux")
		return v &^ ANACLK_LOC_BUSY
	})

	s.SetAnaClock(a, NewClockConfig(v.MustMux("PLL0CLK2"), 4))
	if len(order) != 2 || order[0] != "node" || order[1] != "mux" {
		t.Errorf("SetAnaClock write order, got: %v, want: [node mux]", order)
	}
	if got := s.AnaClockSource(a); got != ANACLK_ANA {
		t.Errorf("AnaClockSource, got: %v, want: %v", got, ANACLK_ANA)
	}
	if got := s.AnalogFrequency(a); got != 100000000 {
		t.Errorf("AnalogFrequency, got: %d, want: 100000000", got)
	}
	p, _ := v.Peripheral("DAC0")
	if got := s.PeripheralFreq(p); got != 100000000 {
		t.Errorf("PeripheralFreq(DAC0), got: %d, want: 100000000", got)
	}

	s.SetAHBClock(a)
	if got := s.AnaClockSource(a); got != ANACLK_AHB {
		t.Errorf("AnaClockSource after SetAHBClock, got: %v, want: %v", got, ANACLK_AHB)
	}
	if got := s.AnalogFrequency(a); got != v.PowerOn.AHB {
		t.Errorf("AnalogFrequency on AHB, got: %d, want: %d", got, v.PowerOn.AHB)
	}
}

func TestAnalogLocalOffsets(t *testing.T) {
	tests := []struct {
		a    AnalogPeripheral
		want uintptr
	}{
		{AnalogPeripheral{Kind: ADC, Index: 0}, SYSCTL_ADCCLK},
		{AnalogPeripheral{Kind: ADC, Index: 3}, SYSCTL_ADCCLK + 12},
		{AnalogPeripheral{Kind: DAC, Index: 1}, SYSCTL_DACCLK + 4},
	}
	for _, test := range tests {
		if got := test.a.localOffset(); got != test.want {
			t.Errorf("localOffset(%+v), got: %04X, want: %04X", test.a, got, test.want)
		}
	}
}

func TestEnablePeripheral(t *testing.T) {
	s := newTestSim(t, "hpm53")
	s.Affiliate(0, 0)
	v := s.Variant()
	p, _ := v.Peripheral("QEI0")
	if s.ClockedName(p.Resource, 0) {
		t.Fatalf("MOT0 clocked before EnablePeripheral")
	}
	s.EnablePeripheral(p, 0)
	if !s.ClockedName(p.Resource, 0) {
		t.Errorf("MOT0 not clocked after EnablePeripheral")
	}

	// Ungated peripherals have nothing to link or program
	pt, _ := v.Peripheral("PTMR")
	s.EnablePeripheral(pt, 0)
	s.SetPeripheralClock(pt, NewClockConfig(1, 2))
	if got := s.PeripheralFreq(pt); got != CLK_24M {
		t.Errorf("PTMR frequency, got: %d, want: %d", got, CLK_24M)
	}
}

func TestGateDropsWrites(t *testing.T) {
	s := newTestSim(t, "hpm53")
	s.Affiliate(0, 0)
	h := s.Gate("DAC0")
	if got := h(5, 7); got != 5 {
		t.Errorf("Gated write, got: %d, want: 5", got)
	}
	s.AddResourceGroup("DAC0", 0)
	if got := h(5, 7); got != 7 {
		t.Errorf("Ungated write, got: %d, want: 7", got)
	}
	if got := s.Gate("")(5, 7); got != 7 {
		t.Errorf("Write to ungated peripheral, got: %d, want: 7", got)
	}
}
