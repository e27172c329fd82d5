package sysctl

import (
	"testing"
)

func TestHertzDiv(t *testing.T) {
	freqs := []Hertz{0, 1, 32768, 24000000, 333333333, 720000000, 1032000000, 0xFFFFFFFF}
	for _, f := range freqs {
		for k := 0; k < 256; k++ {
			got := f.Div(Divider(k))
			want := Hertz(uint32(f) / uint32(k+1))
			if got != want {
				t.Errorf("%d / DIV(%d), got: %d, want: %d", f, k, got, want)
			}
		}
	}
	if got := Hertz(24000000).Div(DIV2); got != 12000000 {
		t.Errorf("24MHz / DIV2, got: %d, want: 12000000", got)
	}
}

func TestHertzString(t *testing.T) {
	tests := []struct {
		f    Hertz
		want string
	}{
		{24000000, "24MHz"},
		{720000000, "720MHz"},
		{32768, "32.768kHz"},
	}
	for _, test := range tests {
		if got := test.f.String(); got != test.want {
			t.Errorf("String(%d), got: %s, want: %s", test.f, got, test.want)
		}
	}
}

func TestParseHertz(t *testing.T) {
	tests := []struct {
		s    string
		want Hertz
		ok   bool
	}{
		{"720MHz", 720000000, true},
		{"24MHz", 24000000, true},
		{"1GHz", 1000000000, true},
		{"5GHz", 0, false},
		{"fast", 0, false},
	}
	for _, test := range tests {
		got, err := ParseHertz(test.s)
		if (err == nil) != test.ok {
			t.Errorf("ParseHertz(%q), got err: %v, want ok: %v", test.s, err, test.ok)
			continue
		}
		if got != test.want {
			t.Errorf("ParseHertz(%q), got: %d, want: %d", test.s, got, test.want)
		}
	}
}
