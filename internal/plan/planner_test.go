package plan

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/plate"
	"github.com/steveyegge/wellplan/internal/pool"
	"github.com/steveyegge/wellplan/internal/tips"
)

func testLayout() deck.Layout {
	return deck.Default("test-bench")
}

func reservoirPools(volumes ...float64) []pool.Pool {
	out := make([]pool.Pool, len(volumes))
	for i, v := range volumes {
		out[i] = pool.Pool{
			ID:        "well" + string(rune('1'+i)),
			Location:  plate.Address{Plate: "reservoir", Column: i + 1},
			Class:     "medium",
			Available: v,
		}
	}
	return out
}

func transfers(t *testing.T, p *Plan) []TransferStep {
	t.Helper()
	var out []TransferStep
	for _, s := range p.Steps() {
		if ts, ok := s.(TransferStep); ok {
			out = append(out, ts)
		}
	}
	return out
}

// --- scenarios ---

func TestScenarioFortyEight(t *testing.T) {
	pl := New(testLayout(), nil)
	addrs, err := pl.Claim("reactions", "plate", 48, 1, "")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := FormatColumns(addrs); got != "plate:A1..A6" {
		t.Errorf("columns = %s, want plate:A1..A6", got)
	}
}

func TestScenarioFiftyOne(t *testing.T) {
	pl := New(testLayout(), nil)
	addrs, err := pl.Claim("reactions", "plate", 51, 1, "")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(addrs) != 7 {
		t.Errorf("len = %d, want 7", len(addrs))
	}
}

func TestScenarioFirstFitSingleWell(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1520, 1520))
	if _, err := pl.Claim("cultures", "plate", 48, 1, ""); err != nil {
		t.Fatal(err)
	}
	err := pl.Distribute(DistributeSpec{Ref: "media", Volume: 190, From: []string{"well1", "well2"}, To: "cultures"})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	p, err := pl.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ts := transfers(t, p)
	if len(ts) != 1 {
		t.Fatalf("transfers = %d, want 1", len(ts))
	}
	if ts[0].SourcePool != "well1" || len(ts[0].Destinations) != 6 || ts[0].Pipette != "p300" {
		t.Errorf("step = %+v", ts[0])
	}
	ledger := p.Pools()
	if ledger[0].After != 380 || ledger[1].After != 1520 {
		t.Errorf("ledger = %+v, want well1 380 and well2 untouched", ledger)
	}
}

func TestScenarioFirstFitSplit(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1520, 1520))
	pl.Claim("cultures", "plate", 80, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "media", Volume: 190, From: []string{"well1", "well2"}, To: "cultures"}) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ts := transfers(t, p)
	if len(ts) != 2 {
		t.Fatalf("transfers = %d, want 2", len(ts))
	}
	if len(ts[0].Destinations) != 8 || len(ts[1].Destinations) != 2 {
		t.Errorf("groups = %d + %d, want 8 + 2", len(ts[0].Destinations), len(ts[1].Destinations))
	}
	if ts[1].Destinations[0].Column != 9 {
		t.Errorf("second group starts at column %d, want 9", ts[1].Destinations[0].Column)
	}
	if ts[0].Tip != tips.AlwaysFresh || ts[1].Tip != tips.Reuse {
		t.Errorf("tips = %s, %s; want always_fresh then reuse", ts[0].Tip, ts[1].Tip)
	}
	if got := p.TransferVolume(); got != 1900 {
		t.Errorf("TransferVolume = %v, want 1900", got)
	}
}

func TestThirteenColumnsRejected(t *testing.T) {
	pl := New(testLayout(), reservoirPools(20000))
	pl.Claim("too-many", "plate", 13*8, 1, "") //nolint:errcheck // checked by Build
	pl.Checkpoint("never", "should not be recorded")
	p, err := pl.Build()
	if p != nil {
		t.Fatal("Build returned a plan alongside an error")
	}
	if !errors.Is(err, plate.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

// --- invariants ---

func TestReplanIsIdempotent(t *testing.T) {
	pools := reservoirPools(1520, 1520)
	build := func() *Plan {
		pl := New(testLayout(), pools)
		pl.Claim("cultures", "plate", 80, 1, "") //nolint:errcheck // checked by Build
		pl.Distribute(DistributeSpec{Ref: "media", Volume: 190, From: []string{"well1", "well2"}, To: "cultures"}) //nolint:errcheck // checked by Build
		pl.Checkpoint("shake", "move to shaker")
		p, err := pl.Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return p
	}
	first, second := build(), build()
	if !reflect.DeepEqual(first, second) {
		t.Error("two builds from identical inputs differ")
	}
	if pools[0].Available != 1520 {
		t.Errorf("caller pool mutated: %v", pools[0].Available)
	}
}

func TestBuildTwiceSamePlanner(t *testing.T) {
	pl := New(testLayout(), reservoirPools(500))
	pl.Claim("r", "plate", 16, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "d", Volume: 10, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
	a, errA := pl.Build()
	b, errB := pl.Build()
	if errA != nil || errB != nil {
		t.Fatalf("Build: %v, %v", errA, errB)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Build is not repeatable")
	}
}

func TestStepsReturnsCopy(t *testing.T) {
	pl := New(testLayout(), reservoirPools(500))
	pl.Claim("r", "plate", 16, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "d", Volume: 10, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	steps := p.Steps()
	ts := steps[0].(TransferStep)
	ts.Destinations[0].Column = 99
	again := p.Steps()[0].(TransferStep)
	if again.Destinations[0].Column != 1 {
		t.Error("mutating Steps() result changed the plan")
	}
}

func TestStickyError(t *testing.T) {
	pl := New(testLayout(), reservoirPools(100))
	pl.Claim("r", "plate", 8, 1, "") //nolint:errcheck // checked below
	first := pl.Distribute(DistributeSpec{Ref: "bad", Volume: 10, From: []string{"nope"}, To: "r"})
	if first == nil {
		t.Fatal("expected unknown pool error")
	}
	if err := pl.Delay("wait", time.Minute, ""); err != first {
		t.Errorf("later call err = %v, want sticky %v", err, first)
	}
	if _, err := pl.Build(); err != first {
		t.Errorf("Build err = %v, want %v", err, first)
	}
}

// --- errors ---

func TestInsufficientVolume(t *testing.T) {
	pl := New(testLayout(), reservoirPools(100, 100))
	pl.Claim("r", "plate", 96, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "fill", Volume: 20, From: []string{"well1", "well2"}, To: "r"}) //nolint:errcheck // checked by Build
	_, err := pl.Build()
	if !errors.Is(err, pool.ErrInsufficientVolume) {
		t.Errorf("err = %v, want ErrInsufficientVolume", err)
	}
	if !strings.Contains(err.Error(), `step "fill"`) {
		t.Errorf("err = %q, want step name", err)
	}
}

func TestDistributeSamePoolTwice(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1520))
	pl.Claim("cultures", "plate", 80, 1, "") //nolint:errcheck // checked by Build
	err := pl.Distribute(DistributeSpec{Ref: "media", Volume: 190, From: []string{"well1", "well1"}, To: "cultures"})
	if !errors.Is(err, pool.ErrDuplicatePool) {
		t.Fatalf("Distribute err = %v, want ErrDuplicatePool", err)
	}
	if _, err := pl.Build(); !errors.Is(err, pool.ErrDuplicatePool) {
		t.Errorf("Build err = %v, want ErrDuplicatePool", err)
	}
}

func TestChannelMismatch(t *testing.T) {
	layout := testLayout()
	layout.Pipettes[0].Channels = 1
	layout.Pipettes[1].Channels = 1

	tests := []struct {
		name  string
		build func(pl *Planner) error
	}{
		{"distribute", func(pl *Planner) error {
			return pl.Distribute(DistributeSpec{Ref: "fill", Volume: 10, From: []string{"well1"}, To: "r"})
		}},
		{"transfer", func(pl *Planner) error {
			pl.Claim("s", "source", 48, 1, "") //nolint:errcheck // checked below
			return pl.Transfer(TransferSpec{Ref: "move", Volume: 10, From: "s", To: "r"})
		}},
		{"collect", func(pl *Planner) error {
			return pl.Collect(CollectSpec{Ref: "drain", Volume: 10, From: "r", To: "well1"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := New(layout, reservoirPools(20000))
			pl.Claim("r", "plate", 48, 1, "") //nolint:errcheck // checked below
			if err := tt.build(pl); !errors.Is(err, ErrChannelMismatch) {
				t.Fatalf("err = %v, want ErrChannelMismatch", err)
			}
			if _, err := pl.Build(); !errors.Is(err, ErrChannelMismatch) {
				t.Errorf("Build err = %v, want ErrChannelMismatch", err)
			}
		})
	}
}

func TestOperationVolumeExceeded(t *testing.T) {
	tests := []struct {
		name    string
		pipette string
		volume  float64
	}{
		{"explicit pipette", "p20", 25},
		{"no pipette fits", "", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := New(testLayout(), reservoirPools(20000))
			pl.Claim("r", "plate", 8, 1, "") //nolint:errcheck // checked by Build
			pl.Distribute(DistributeSpec{Ref: "big", Pipette: tt.pipette, Volume: tt.volume, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
			if _, err := pl.Build(); !errors.Is(err, pool.ErrOperationVolumeExceeded) {
				t.Errorf("err = %v, want ErrOperationVolumeExceeded", err)
			}
		})
	}
}

func TestAddressCollision(t *testing.T) {
	pl := New(testLayout(), nil)
	if _, err := pl.Claim("pcr", "plate", 48, 1, ""); err != nil {
		t.Fatal(err)
	}
	_, err := pl.Claim("dye", "plate", 16, 6, "")
	if !errors.Is(err, ErrAddressCollision) {
		t.Fatalf("err = %v, want ErrAddressCollision", err)
	}
	var ce *CollisionError
	if !errors.As(err, &ce) {
		t.Fatalf("err is %T", err)
	}
	if ce.Existing != "pcr" || ce.Address.Column != 6 {
		t.Errorf("CollisionError = %+v", ce)
	}
}

func TestExplicitShareAllowed(t *testing.T) {
	pl := New(testLayout(), nil)
	if _, err := pl.Claim("cultures", "plate", 48, 1, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := pl.Claim("dilutions", "plate", 48, 1, "cultures"); err != nil {
		t.Errorf("shared claim: %v", err)
	}
	if _, err := pl.Claim("plating", "source", 48, 1, ""); err != nil {
		t.Errorf("other plate: %v", err)
	}
	if _, err := pl.Claim("cultures", "source", 8, 7, ""); err == nil {
		t.Error("duplicate set name accepted")
	}
}

func TestTipsExhausted(t *testing.T) {
	pl := New(testLayout(), nil)
	pl.Claim("src", "source", 96, 1, "") //nolint:errcheck // checked by Build
	pl.Claim("dst", "plate", 96, 1, "")  //nolint:errcheck // checked by Build
	pl.Transfer(TransferSpec{Ref: "first", Pipette: "p20", Volume: 5, From: "src", To: "dst"}) //nolint:errcheck // checked by Build
	if _, err := pl.Build(); err != nil {
		t.Fatalf("12 pickups should fit one rack: %v", err)
	}
	pl.Transfer(TransferSpec{Ref: "second", Pipette: "p20", Volume: 5, From: "src", To: "dst"}) //nolint:errcheck // checked by Build
	if _, err := pl.Build(); !errors.Is(err, tips.ErrTipsExhausted) {
		t.Errorf("err = %v, want ErrTipsExhausted", err)
	}
}

// --- step variants ---

func TestPauseDropsHeldTip(t *testing.T) {
	pl := New(testLayout(), reservoirPools(20000))
	pl.Claim("a", "plate", 8, 1, "") //nolint:errcheck // checked by Build
	pl.Claim("b", "plate", 8, 2, "") //nolint:errcheck // checked by Build
	pl.Claim("c", "plate", 8, 3, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "one", Volume: 10, From: []string{"well1"}, To: "a"}) //nolint:errcheck // checked by Build
	pl.Delay("incubate", 30*time.Minute, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "two", Volume: 10, From: []string{"well1"}, To: "b"}) //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "three", Volume: 10, From: []string{"well1"}, To: "c"}) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ts := transfers(t, p)
	var got []tips.Policy
	for _, s := range ts {
		got = append(got, s.Tip)
	}
	want := []tips.Policy{tips.AlwaysFresh, tips.AlwaysFresh, tips.Reuse}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tips = %v, want %v", got, want)
	}
}

func TestMixAfterSplitsPerColumn(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1000))
	pl.Claim("r", "plate", 24, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{ //nolint:errcheck // checked by Build
		Ref: "dye", Pipette: "p20", Volume: 5, From: []string{"well1"}, To: "r",
		MixAfter: &Mix{Repetitions: 3, Volume: 10},
	})
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	ts := transfers(t, p)
	if len(ts) != 3 {
		t.Fatalf("transfers = %d, want one per column", len(ts))
	}
	for i, s := range ts {
		if len(s.Destinations) != 1 || s.Tip != tips.AlwaysFresh {
			t.Errorf("step %d = %+v", i, s)
		}
	}
}

func TestCollectIntoSink(t *testing.T) {
	pools := []pool.Pool{{ID: "waste", Location: plate.Address{Plate: "reservoir", Column: 12}, Capacity: 300}}
	pl := New(testLayout(), pools)
	pl.Claim("beads", "plate", 16, 1, "") //nolint:errcheck // checked by Build
	if err := pl.Collect(CollectSpec{Ref: "sup", Volume: 100, From: "beads", To: "waste"}); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if err := pl.Collect(CollectSpec{Ref: "wash", Volume: 100, From: "beads", To: "waste"}); !errors.Is(err, pool.ErrOverfill) {
		t.Errorf("err = %v, want ErrOverfill", err)
	}
}

func TestCollectLedger(t *testing.T) {
	pools := []pool.Pool{{ID: "waste", Location: plate.Address{Plate: "reservoir", Column: 12}}}
	pl := New(testLayout(), pools)
	pl.Claim("beads", "plate", 16, 1, "") //nolint:errcheck // checked by Build
	pl.Collect(CollectSpec{Ref: "sup", Volume: 100, From: "beads", To: "waste"}) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Pools()[0].Received; got != 200 {
		t.Errorf("Received = %v, want 200", got)
	}
	ts := transfers(t, p)
	if len(ts) != 2 || ts[0].SinkPool != "waste" {
		t.Errorf("transfers = %+v", ts)
	}
}

func TestModuleCommands(t *testing.T) {
	pl := New(testLayout(), nil)
	if err := pl.Module("cool", "temp", ActionTemperature, 4); err != nil {
		t.Errorf("temperature: %v", err)
	}
	pl2 := New(testLayout(), nil)
	if err := pl2.Module("mag", "temp", ActionEngage, 6.8); err == nil {
		t.Error("engage on temperature module accepted")
	}
	pl3 := New(testLayout(), nil)
	if err := pl3.Module("x", "nope", ActionTemperature, 4); err == nil {
		t.Error("unknown module accepted")
	}
}

func TestDelayMustBePositive(t *testing.T) {
	pl := New(testLayout(), nil)
	if err := pl.Delay("wait", 0, ""); err == nil {
		t.Error("zero delay accepted")
	}
}

func TestTransferLengthMismatch(t *testing.T) {
	pl := New(testLayout(), nil)
	pl.Claim("a", "source", 16, 1, "") //nolint:errcheck // checked below
	pl.Claim("b", "plate", 24, 1, "")  //nolint:errcheck // checked below
	if err := pl.Transfer(TransferSpec{Ref: "t", Volume: 5, From: "a", To: "b"}); err == nil {
		t.Error("mismatched sets accepted")
	}
}

func TestPinnedNeverTip(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1000))
	pl.Claim("r", "plate", 8, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "d", Volume: 10, Tip: tips.Never, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	if ts := transfers(t, p); ts[0].Tip != tips.Never {
		t.Errorf("tip = %s, want never", ts[0].Tip)
	}
	if len(p.Tips()) != 0 {
		t.Errorf("Tips = %+v, want no pickups", p.Tips())
	}
}

// --- output ---

func TestMarshalJSONKinds(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1000))
	pl.Claim("r", "plate", 8, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "d", Volume: 10, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
	pl.Checkpoint("heat", "heat shock 42 °C for 45 s")
	pl.Delay("rest", 30*time.Minute, "") //nolint:errcheck // checked by Build
	pl.Module("cool", "temp", ActionTemperature, 4) //nolint:errcheck // checked by Build
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	p.Name = "demo"
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded struct {
		Name  string
		Steps []map[string]any
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, s := range decoded.Steps {
		kinds = append(kinds, s["kind"].(string))
	}
	want := []string{KindTransfer, KindCheckpoint, KindDelay, KindModule}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
	if decoded.Steps[2]["seconds"].(float64) != 1800 {
		t.Errorf("delay seconds = %v", decoded.Steps[2]["seconds"])
	}
	if decoded.Name != "demo" {
		t.Errorf("name = %q", decoded.Name)
	}
}

func TestWriteText(t *testing.T) {
	pl := New(testLayout(), reservoirPools(1000))
	pl.Claim("r", "plate", 48, 1, "") //nolint:errcheck // checked by Build
	pl.Distribute(DistributeSpec{Ref: "d", Volume: 10, From: []string{"well1"}, To: "r"}) //nolint:errcheck // checked by Build
	pl.Checkpoint("heat", "heat shock")
	p, err := pl.Build()
	if err != nil {
		t.Fatal(err)
	}
	p.Name = "demo"
	var b strings.Builder
	if err := p.WriteText(&b); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	for _, want := range []string{
		"plan demo on test-bench: 2 steps",
		"well1 (reservoir:A1) -> plate:A1..A6 [always_fresh]",
		"pause: heat shock",
		"1000.00 ->    940.00 µl",
		"p20",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatColumns(t *testing.T) {
	tests := []struct {
		in   []plate.Address
		want string
	}{
		{nil, "(none)"},
		{[]plate.Address{{Plate: "p", Column: 3}}, "p:A3"},
		{[]plate.Address{{Plate: "p", Column: 1}, {Plate: "p", Column: 2}}, "p:A1..A2"},
		{[]plate.Address{{Plate: "p", Column: 1}, {Plate: "p", Column: 3}}, "p:A1,p:A3"},
		{[]plate.Address{{Plate: "a", Column: 12}, {Plate: "b", Column: 1}}, "a:A12,b:A1"},
	}
	for _, tt := range tests {
		if got := FormatColumns(tt.in); got != tt.want {
			t.Errorf("FormatColumns(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
