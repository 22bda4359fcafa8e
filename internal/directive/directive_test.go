package directive

import (
	"reflect"
	"testing"
)

const sg = "[SG]"

func TestClassify(t *testing.T) {
	cases := []struct {
		tag  string
		want Directive
	}{
		{"[SG] retro", Directive{Kind: Profile, Value: "retro"}},
		{"[sg]   crt-royale.sgp  ", Directive{Kind: Profile, Value: "crt-royale.sgp"}},
		{"[SG] NoFullscreen", Directive{Kind: NoFullscreen}},
		{"[SG] nofullscreen", Directive{Kind: NoFullscreen}},
		{"[SG]PAUSEDMODE", Directive{Kind: PausedMode}},
		{"[SG]", Directive{Kind: Unrecognized}},
		{"[SG]    ", Directive{Kind: Unrecognized}},
		{"retro", Directive{Kind: Unrecognized}},
		{"RPG", Directive{Kind: Unrecognized}},
		{"", Directive{Kind: Unrecognized}},
	}
	for _, c := range cases {
		if got := Classify(sg, c.tag); got != c.want {
			t.Fatalf("Classify(%q) = %+v, want %+v", c.tag, got, c.want)
		}
	}
}

func TestClassifyDefaultPrefix(t *testing.T) {
	got := Classify("", "[ShaderGlass] retro")
	if got.Kind != Profile || got.Value != "retro" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestClassifyNonASCIIPrefix(t *testing.T) {
	// KELVIN SIGN folds to k but is three bytes long
	kelvin := "[\u212A]"
	cases := map[string]Directive{
		"[k] crt":          {Kind: Profile, Value: "crt"},
		"[K] NoFullscreen": {Kind: NoFullscreen},
		"[\u212A] retro":   {Kind: Profile, Value: "retro"},
		"[k]":              {Kind: Unrecognized},
		"[x] crt":          {Kind: Unrecognized},
	}
	for tag, want := range cases {
		if got := Classify(kelvin, tag); got != want {
			t.Errorf("Classify(%q) = %+v, want %+v", tag, got, want)
		}
	}
	if got := Classify("[Ünï]", "[üNÏ] crt"); got.Kind != Profile || got.Value != "crt" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParseFlagsIndependentOfOrder(t *testing.T) {
	orders := [][]string{
		{"[SG] retro", "[SG] NoFullscreen", "[SG] PausedMode"},
		{"[SG] PausedMode", "[SG] retro", "[SG] NoFullscreen"},
		{"[SG] NoFullscreen", "[SG] PausedMode", "[SG] retro"},
	}
	for _, tags := range orders {
		sel := Parse(sg, tags)
		if sel.Profile != "retro" || !sel.NoFullscreen || !sel.PausedMode {
			t.Fatalf("Parse(%v) = %+v", tags, sel)
		}
		if len(sel.Dropped) != 0 {
			t.Fatalf("unexpected dropped: %v", sel.Dropped)
		}
	}
}

func TestParseFirstProfileWins(t *testing.T) {
	sel := Parse(sg, []string{"Action", "[SG] first", "[SG] second", "[SG] third"})
	if sel.Profile != "first" {
		t.Fatalf("profile = %q", sel.Profile)
	}
	if !reflect.DeepEqual(sel.Dropped, []string{"second", "third"}) {
		t.Fatalf("dropped = %v", sel.Dropped)
	}
}

func TestParseNoDirectives(t *testing.T) {
	for _, tags := range [][]string{nil, {}, {"RPG", "Co-op"}} {
		if sel := Parse(sg, tags); sel.HasProfile() {
			t.Fatalf("expected no profile for %v, got %+v", tags, sel)
		}
	}
}

func TestParseFlagsAloneSelectNothing(t *testing.T) {
	sel := Parse(sg, []string{"[SG] NoFullscreen", "[SG] PausedMode"})
	if sel.HasProfile() {
		t.Fatalf("flags alone must not select a profile: %+v", sel)
	}
	if !sel.NoFullscreen || !sel.PausedMode {
		t.Fatalf("flags not recorded: %+v", sel)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	tag := Format(sg, "retro")
	if tag != "[SG] retro" {
		t.Fatalf("Format = %q", tag)
	}
	if d := Classify(sg, tag); d.Kind != Profile || d.Value != "retro" {
		t.Fatalf("Classify(Format) = %+v", d)
	}
	if !IsDirective(sg, tag) || IsDirective(sg, "retro") {
		t.Fatal("IsDirective mismatch")
	}
}
