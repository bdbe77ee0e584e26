package sources

import "testing"

func TestTranslate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"BB_EQUITY", Bloomberg},
		{"BB_BOND", Bloomberg},
		{"BB_BOND_DERIVED", "BB_BOND_DERIVED"},
		{"FTSETMX_PX", FTSE},
		{"MARKIT_LOAN_CLEANPRICE", Markit},
		{"FUNDRUN_EQUITY", Fundrun},
		{"FIDESK_MANUALPRICE", Override},
		{"LW_OVERRIDE", Override},
		{"FIDESK_MISSINGPRICE", Manual},
		{"LW_MANUAL", Manual},
		{"PXAPX", APX},
		{"RBC", RBC},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}
	for _, c := range cases {
		if got := Translate(c.raw); got.Name != c.want {
			t.Errorf("Translate(%q) = %q, want %q", c.raw, got.Name, c.want)
		}
	}
}

func TestComparePrecedencePairs(t *testing.T) {
	cases := []struct {
		winner, loser string
	}{
		{Override, Manual},
		{Manual, Fundrun},
		{Fundrun, FTSE},
		{FTSE, Markit},
		{Markit, Bloomberg},
		{Bloomberg, RBC},
		{Override, RBC},
	}
	for _, c := range cases {
		a, b := PriceSource{Name: c.winner}, PriceSource{Name: c.loser}
		if ComparePrecedence(a, b) >= 0 {
			t.Errorf("%s should beat %s", c.winner, c.loser)
		}
		if ComparePrecedence(b, a) <= 0 {
			t.Errorf("%s should lose to %s", c.loser, c.winner)
		}
	}
}

func TestUnrankedLosesToRanked(t *testing.T) {
	unranked := PriceSource{Name: "MYSTERY_FEED"}
	for _, name := range Hierarchy {
		if ComparePrecedence(PriceSource{Name: name}, unranked) >= 0 {
			t.Errorf("%s should beat unranked source", name)
		}
	}
}

func TestTieBreakIsDeterministic(t *testing.T) {
	a := PriceSource{Name: "FEED_A"}
	b := PriceSource{Name: "FEED_B"}
	if ComparePrecedence(a, b) >= 0 {
		t.Error("FEED_A should win the lexicographic tie-break against FEED_B")
	}
	if ComparePrecedence(b, a) <= 0 {
		t.Error("tie-break must be antisymmetric")
	}
	if ComparePrecedence(a, a) != 0 {
		t.Error("a source must tie with itself")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]string{" BLOOMBERG ", "FTSE", ""}, []string{"OVERRIDE"})
	if !r.IsRelevant(PriceSource{Name: Bloomberg}) {
		t.Error("BLOOMBERG should be relevant after trimming")
	}
	if r.IsRelevant(PriceSource{Name: Markit}) {
		t.Error("MARKIT should not be relevant")
	}
	names := r.RelevantNames()
	if len(names) != 3 {
		t.Fatalf("RelevantNames returned %v, want 3 entries", names)
	}
	if names[0] != "BLOOMBERG" {
		t.Errorf("names not sorted: %v", names)
	}
}
