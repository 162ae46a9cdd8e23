package deck

import (
	"strings"
	"testing"

	"github.com/steveyegge/wellplan/internal/fsys"
)

const goldenGateBench = `
[bench]
name = "ot2"

[[labware]]
id = "rxn"
kind = "plate"
slot = 1
well_volume = 200

[[labware]]
id = "gblocks"
kind = "plate"
slot = 2

[[labware]]
id = "tips20"
kind = "tiprack"
slot = 3

[[labware]]
id = "tips300"
kind = "tiprack"
slot = 4
capacity = 96

[[labware]]
id = "res"
kind = "reservoir"
slot = 6
well_volume = 22000

[[labware]]
id = "cells"
kind = "plate"
module = "temp"

[[modules]]
id = "temp"
kind = "temperature"
slot = 7

[[pipettes]]
name = "p20"
mount = "right"
max_volume = 20
tip_racks = ["tips20"]

[[pipettes]]
name = "p300"
mount = "left"
max_volume = 300
tip_racks = ["tips300"]
`

// --- Parse / Load ---

func TestParseValid(t *testing.T) {
	l, err := Parse([]byte(goldenGateBench))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if l.Bench.Name != "ot2" {
		t.Errorf("Bench.Name = %q", l.Bench.Name)
	}
	if len(l.Labware) != 6 {
		t.Errorf("len(Labware) = %d, want 6", len(l.Labware))
	}
	if l.ProtocolsDir() != "protocols" {
		t.Errorf("ProtocolsDir = %q, want default", l.ProtocolsDir())
	}
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("[bench]\nname = \"x\"\nnmae = \"typo\"\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Errorf("err = %v, want unknown key", err)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("not toml {{{")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadThroughFS(t *testing.T) {
	fs := fsys.NewFake()
	fs.Files["/bench/bench.toml"] = []byte(goldenGateBench)
	l, err := Load(fs, "/bench/bench.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := l.Plate("rxn"); err != nil {
		t.Errorf("Plate(rxn): %v", err)
	}
	if _, err := Load(fs, "/bench/missing.toml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := Default("bench-1")
	data, err := orig.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, data)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate default: %v", err)
	}
	if got.Bench.Name != "bench-1" || len(got.Pipettes) != 2 || len(got.Labware) != len(orig.Labware) {
		t.Errorf("round trip lost data: %+v", got)
	}
}

// --- lookups ---

func TestLookups(t *testing.T) {
	l, err := Parse([]byte(goldenGateBench))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Plate("res"); err == nil {
		t.Error("reservoir accepted as plate")
	}
	if _, err := l.Plate("nope"); err == nil {
		t.Error("unknown plate accepted")
	}
	p, err := l.Pipette("p300")
	if err != nil || p.MaxVolume != 300 {
		t.Errorf("Pipette(p300) = %+v, %v", p, err)
	}
	if p.ChannelWidth() != 8 {
		t.Errorf("ChannelWidth = %d, want 8", p.ChannelWidth())
	}
	if l.TipCapacity(p) != 96 {
		t.Errorf("TipCapacity = %d, want 96", l.TipCapacity(p))
	}
	if _, err := l.Module("temp"); err != nil {
		t.Errorf("Module(temp): %v", err)
	}
	res, _ := l.Find("res")
	if g := res.Geometry(); g.Rows != 1 || g.Columns != 12 {
		t.Errorf("reservoir geometry = %+v", g)
	}
}

func TestPipetteFor(t *testing.T) {
	l, _ := Parse([]byte(goldenGateBench))
	tests := []struct {
		vol  float64
		want string
	}{
		{2.22, "p20"},
		{20, "p20"},
		{20.5, "p300"},
		{300, "p300"},
	}
	for _, tt := range tests {
		p, err := l.PipetteFor(tt.vol)
		if err != nil || p.Name != tt.want {
			t.Errorf("PipetteFor(%v) = %q, %v; want %q", tt.vol, p.Name, err, tt.want)
		}
	}
	if _, err := l.PipetteFor(301); err == nil {
		t.Error("PipetteFor(301) should fail")
	}
}

// --- Validate ---

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Layout)
		want   string
	}{
		{"no name", func(l *Layout) { l.Bench.Name = "" }, "name is required"},
		{"no pipettes", func(l *Layout) { l.Pipettes = nil }, "no pipettes"},
		{"slot clash", func(l *Layout) { l.Labware[1].Slot = 1 }, "already holds"},
		{"slot range", func(l *Layout) { l.Labware[0].Slot = 12 }, "out of range"},
		{"module slot clash", func(l *Layout) { l.Modules[0].Slot = 1 }, "already holds"},
		{"dup labware", func(l *Layout) { l.Labware[1].ID = "rxn" }, "duplicate labware"},
		{"bad kind", func(l *Layout) { l.Labware[0].Kind = "tube" }, "unknown kind"},
		{"unknown module", func(l *Layout) { l.Labware[5].Module = "mag" }, "unknown module"},
		{"slot and module", func(l *Layout) { l.Labware[5].Slot = 9 }, "not both"},
		{"bad module kind", func(l *Layout) { l.Modules[0].Kind = "thermocycler" }, "unknown kind"},
		{"zero max", func(l *Layout) { l.Pipettes[0].MaxVolume = 0 }, "max_volume"},
		{"min above max", func(l *Layout) { l.Pipettes[0].MinVolume = 50 }, "min_volume"},
		{"unknown rack", func(l *Layout) { l.Pipettes[0].TipRacks = []string{"tips10"} }, "unknown tip rack"},
		{"rack not rack", func(l *Layout) { l.Pipettes[0].TipRacks = []string{"rxn"} }, "not a tip rack"},
		{"dup pipette", func(l *Layout) { l.Pipettes[1].Name = "p20" }, "duplicate pipette"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Parse([]byte(goldenGateBench))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(l)
			err = l.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
		})
	}
}
