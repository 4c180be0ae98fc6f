package core

import (
	"strings"
	"testing"
	"time"
)

func TestSourceKindValid(t *testing.T) {
	for _, k := range []SourceKind{KindWebSearch, KindDocument, KindLink, KindContinuation} {
		if !k.Valid() {
			t.Fatalf("%s should be valid", k)
		}
	}
	if SourceKind("carrier_pigeon").Valid() {
		t.Fatal("unknown kind accepted")
	}
}

func TestRankResults(t *testing.T) {
	in := []SourceResult{
		{Kind: KindWebSearch, Content: "short"},
		{Kind: KindWebSearch, Content: strings.Repeat("a", 50)},
		{Kind: KindWebSearch, Content: strings.Repeat("b", 100)},
	}
	out := RankResults(in, 10)
	if len(out) != 2 {
		t.Fatalf("expected the short entry dropped, got %d results", len(out))
	}
	if len(out[0].Content) != 100 || len(out[1].Content) != 50 {
		t.Fatal("results not ordered by length descending")
	}
	if in[0].Content != "short" {
		t.Fatal("input slice mutated")
	}
}

func TestDetailLevelClamp(t *testing.T) {
	if DetailLevel(-3).Clamp() != 0 {
		t.Fatal("negative levels clamp to 0")
	}
	if DetailLevel(9).Clamp() != 4 {
		t.Fatal("high levels clamp to 4")
	}
	if DetailLevel(2).Clamp() != 2 {
		t.Fatal("in-range levels pass through")
	}
}

func TestSourceBudgetScaling(t *testing.T) {
	l0 := SourceBudget(KindWebSearch, 0)
	l4 := SourceBudget(KindWebSearch, 4)
	if l0 != 10*time.Second {
		t.Fatalf("unexpected base budget %s", l0)
	}
	if l4 != 3*l0 {
		t.Fatalf("level 4 should wait three times level 0, got %s", l4)
	}
	// Unknown kinds get the default base rather than zero.
	if SourceBudget(SourceKind("other"), 0) != 10*time.Second {
		t.Fatal("unknown kind budget")
	}
}

func TestPromptWindowMonotonic(t *testing.T) {
	prev := 0
	for level := 0; level <= 4; level++ {
		w := PromptWindow(DetailLevel(level))
		if w <= prev {
			t.Fatalf("window must grow with detail level, got %d at level %d", w, level)
		}
		prev = w
	}
	if PromptWindow(0) != 24_000 {
		t.Fatalf("unexpected base window %d", PromptWindow(0))
	}
}
