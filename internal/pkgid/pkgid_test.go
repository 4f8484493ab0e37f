package pkgid

import "testing"

func TestParseName(t *testing.T) {
	cases := []struct {
		raw     string
		want    Name
		wantErr bool
	}{
		{"Acme/Widgets", "acme/widgets", false},
		{"  acme/widgets  ", "acme/widgets", false},
		{"acme", "", true},
		{"", "", true},
		{"acme/wid gets", "", true},
		{"acme/widgets/extra", "", true},
	}

	for _, c := range cases {
		got, err := ParseName(c.raw)
		if (err != nil) != c.wantErr {
			t.Fatalf("ParseName(%q) error = %v, wantErr %v", c.raw, err, c.wantErr)
		}

		if err == nil && got != c.want {
			t.Fatalf("ParseName(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNameScope(t *testing.T) {
	n, err := ParseName("acme/widgets")
	if err != nil {
		t.Fatal(err)
	}

	if n.Scope() != "acme" {
		t.Fatalf("Scope() = %q, want %q", n.Scope(), "acme")
	}
}

func TestVersionOrdering(t *testing.T) {
	a, err := ParseVersion("1.2.0")
	if err != nil {
		t.Fatal(err)
	}

	b, err := ParseVersion("1.10.0")
	if err != nil {
		t.Fatal(err)
	}

	if !a.LessThan(b) {
		t.Fatalf("expected %s < %s", a, b)
	}

	if b.LessThan(a) {
		t.Fatalf("expected %s not < %s", b, a)
	}
}

func TestSyntheticPin(t *testing.T) {
	v := SyntheticPin("abc1234")
	if !v.IsSyntheticPin() {
		t.Fatalf("expected %s to be a synthetic pin", v)
	}

	real, err := ParseVersion("1.0.0")
	if err != nil {
		t.Fatal(err)
	}

	if real.IsSyntheticPin() {
		t.Fatalf("did not expect %s to be a synthetic pin", real)
	}
}

func TestConstraintCheck(t *testing.T) {
	c, err := ParseConstraint("^1.2.0")
	if err != nil {
		t.Fatal(err)
	}

	inRange, err := ParseVersion("1.5.0")
	if err != nil {
		t.Fatal(err)
	}

	outOfRange, err := ParseVersion("2.0.0")
	if err != nil {
		t.Fatal(err)
	}

	if !c.Check(inRange) {
		t.Fatalf("expected %s to satisfy %s", inRange, c)
	}

	if c.Check(outOfRange) {
		t.Fatalf("did not expect %s to satisfy %s", outOfRange, c)
	}
}

func TestIntersect(t *testing.T) {
	a, err := ParseConstraint(">=1.0.0")
	if err != nil {
		t.Fatal(err)
	}

	b, err := ParseConstraint("<2.0.0")
	if err != nil {
		t.Fatal(err)
	}

	merged, err := Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}

	v15, _ := ParseVersion("1.5.0")
	v25, _ := ParseVersion("2.5.0")

	if !merged.Check(v15) {
		t.Fatalf("expected merged constraint to accept 1.5.0")
	}

	if merged.Check(v25) {
		t.Fatalf("expected merged constraint to reject 2.5.0")
	}
}

func TestCompatibleWith(t *testing.T) {
	cases := []struct {
		consumer, library TargetKind
		want              bool
	}{
		{TargetLune, TargetLune, true},
		{TargetLune, TargetRoblox, false},
		{TargetRoblox, TargetRoblox, true},
		{TargetRoblox, TargetRobloxServer, true},
		{TargetRobloxServer, TargetRobloxServer, true},
		{TargetRobloxServer, TargetRoblox, true},
		{TargetRoblox, TargetLune, false},
	}

	for _, c := range cases {
		if got := CompatibleWith(c.consumer, c.library); got != c.want {
			t.Errorf("CompatibleWith(%s, %s) = %v, want %v", c.consumer, c.library, got, c.want)
		}
	}
}

func TestSourceRefClassIgnoresRevSpec(t *testing.T) {
	a := Git("https://example.com/acme/widgets.git", "v1.0.0")
	b := Git("https://example.com/acme/widgets.git", "v2.0.0")

	if a.Class() != b.Class() {
		t.Fatalf("expected git source refs to the same repo to share a class regardless of revspec")
	}

	c := Git("https://example.com/acme/other.git", "v1.0.0")
	if a.Class() == c.Class() {
		t.Fatalf("did not expect different git URLs to share a class")
	}
}

func TestUnificationKey(t *testing.T) {
	name, _ := ParseName("acme/widgets")
	v1, _ := ParseVersion("1.0.0")
	v2, _ := ParseVersion("2.0.0")

	id1 := ID{Source: Registry("https://pkgs.example.com"), Name: name, Version: v1, Target: TargetLune}
	id2 := ID{Source: Registry("https://pkgs.example.com"), Name: name, Version: v2, Target: TargetLune}

	if id1.UnificationKey() != id2.UnificationKey() {
		t.Fatalf("expected same-source same-name-and-target IDs to share a unification key regardless of version")
	}
}
