package filter

import (
	"fmt"
	"sync"
	"testing"
)

func TestClassFilter_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		class    string
		want     bool
	}{
		{"EmptyMatchesAll", nil, "Actor", true},
		{"Exact", []string{"Actor"}, "Actor", true},
		{"ExactMiss", []string{"Actor"}, "Actors", false},
		{"Prefix", []string{"Hud*"}, "HudWidget", true},
		{"PrefixMiss", []string{"Hud*"}, "Widget", false},
		{"Suffix", []string{"*Widget"}, "HudWidget", true},
		{"Contains", []string{"*Inv*"}, "PlayerInventory", true},
		{"Star", []string{"*"}, "Anything", true},
		{"ExcludeOnly", []string{"!Widget"}, "Widget", false},
		{"ExcludeOnlyOther", []string{"!Widget"}, "Actor", true},
		{"ExcludeWins", []string{"*", "!Item"}, "Item", false},
		{"SeveralIncludes", []string{"Actor", "Item"}, "Item", true},
		{"Whitespace", []string{"  Level "}, "Level", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewClassFilter(tt.patterns...)
			if err != nil {
				t.Fatalf("NewClassFilter: %v", err)
			}
			if got := f.Match(tt.class); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.class, got, tt.want)
			}
			// Second call is served from the cache.
			if got := f.Match(tt.class); got != tt.want {
				t.Errorf("cached Match(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestClassFilter_InvalidPatterns(t *testing.T) {
	for _, p := range []string{"", "!", "**", "A*c", "*a*b*"} {
		if _, err := NewClassFilter(p); err == nil {
			t.Errorf("pattern %q accepted", p)
		}
	}
}

func TestClassFilter_MatchLineage(t *testing.T) {
	f, err := NewClassFilter("Thinker", "!Corpse")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		lineage []string
		want    bool
	}{
		{[]string{"Actor", "Thinker"}, true},
		{[]string{"Thinker"}, true},
		{[]string{"Item"}, false},
		{[]string{"Corpse", "Actor", "Thinker"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := f.MatchLineage(tt.lineage); got != tt.want {
			t.Errorf("MatchLineage(%v) = %v, want %v", tt.lineage, got, tt.want)
		}
	}

	all, _ := NewClassFilter()
	if !all.IsEmpty() || !all.MatchLineage([]string{"Item"}) {
		t.Error("empty filter should match every lineage")
	}
}

func TestClassFilter_AddResetsCache(t *testing.T) {
	f, _ := NewClassFilter()
	if !f.Match("Widget") {
		t.Fatal("empty filter rejected Widget")
	}
	if size, _ := f.CacheStats(); size != 1 {
		t.Fatalf("cache size = %d, want 1", size)
	}
	if err := f.Add("!Widget"); err != nil {
		t.Fatal(err)
	}
	if f.Match("Widget") {
		t.Error("Widget still matches after exclusion")
	}
}

func TestClassFilter_ConcurrentAccess(t *testing.T) {
	f, _ := NewClassFilter("Actor*", "!ActorCorpse")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				name := fmt.Sprintf("Actor%d", j%50)
				if !f.Match(name) {
					t.Errorf("Match(%q) = false", name)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	if size, max := f.CacheStats(); size != 50 || max != 1024 {
		t.Errorf("CacheStats() = %d, %d", size, max)
	}
}
