package hamlib

import (
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		erp  bool
		cmd  Command
		args []string
		want string
	}{
		{false, CmdGetFreq, nil, `\get_freq`},
		{true, CmdGetFreq, nil, `+\get_freq`},
		{false, CmdSetMode, []string{"USB", "2400"}, `\set_mode USB 2400`},
		{true, CmdSetMode, []string{"USB", "2400"}, `+\set_mode USB 2400`},
	}
	for _, tt := range tests {
		if got := encode(tt.erp, tt.cmd, tt.args...); got != tt.want {
			t.Errorf("encode(%v, %s, %v) = %q, want %q", tt.erp, tt.cmd, tt.args, got, tt.want)
		}
	}
}

func TestNormalizeCommand(t *testing.T) {
	tests := map[string]Command{
		"F":           CmdSetFreq,
		"f":           CmdGetFreq,
		"M":           CmdSetMode,
		"v":           CmdGetVFO,
		"get_freq":    CmdGetFreq,
		`\get_freq`:   CmdGetFreq,
		`\dump_caps`:  CmdDumpCaps,
		`\chk_vfo`:    CmdChkVFO,
		`\get_level`:  CmdGetLevel,
	}
	for in, want := range tests {
		got, ok := NormalizeCommand(in)
		if !ok || got != want {
			t.Errorf("NormalizeCommand(%q) = (%q, %v), want (%q, true)", in, got, ok, want)
		}
	}
	if _, ok := NormalizeCommand("wut"); ok {
		t.Errorf("NormalizeCommand(\"wut\") should not be recognized")
	}
}

func TestDecodeERP(t *testing.T) {
	lines := []string{"get_freq:", "Frequency: 14074000", "RPRT 0"}
	resp, err := decodeERP(CmdGetFreq, lines)
	if err != nil {
		t.Fatalf("decodeERP returned error: %v", err)
	}
	if resp.RPRT != 0 {
		t.Errorf("RPRT = %d, want 0", resp.RPRT)
	}
	if resp.Values["Frequency"] != "14074000" {
		t.Errorf("Frequency = %q, want 14074000", resp.Values["Frequency"])
	}
}

func TestDecodeERPMissingRPRT(t *testing.T) {
	if _, err := decodeERP(CmdGetFreq, []string{"get_freq:", "Frequency: 1"}); err == nil {
		t.Fatal("expected protocol error for missing RPRT line")
	} else if err.Kind != KindProtocol {
		t.Errorf("Kind = %v, want protocol", err.Kind)
	}
}

func TestDecodeERPNegativeRPRT(t *testing.T) {
	_, err := decodeERP(CmdSetFreq, []string{"RPRT -11"})
	if err == nil {
		t.Fatal("expected rig error for negative RPRT")
	}
	if err.Kind != KindRig || err.Code != -11 {
		t.Errorf("got Kind=%v Code=%d, want Kind=rig Code=-11", err.Kind, err.Code)
	}
}

func TestDecodeDefaultFallback(t *testing.T) {
	resp, err := decodeDefault(CmdGetFreq, []string{"14074000"})
	if err != nil {
		t.Fatalf("decodeDefault returned error: %v", err)
	}
	if resp.RPRT != 0 {
		t.Errorf("RPRT = %d, want 0", resp.RPRT)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "14074000" {
		t.Errorf("Lines = %v, want [14074000]", resp.Lines)
	}
}

func TestRoundTripParseEncode(t *testing.T) {
	cases := []struct {
		cmd  Command
		args []string
	}{
		{CmdGetFreq, nil},
		{CmdSetFreq, []string{"14200000"}},
		{CmdSetMode, []string{"USB", "0"}},
		{CmdChkVFO, nil},
	}
	for _, c := range cases {
		wire := encode(false, c.cmd, c.args...)
		fields := strings.Fields(wire)
		got, ok := NormalizeCommand(fields[0])
		if !ok || got != c.cmd {
			t.Errorf("round trip for %s: got %q ok=%v", c.cmd, got, ok)
		}
	}
}
