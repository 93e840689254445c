package cache

import (
	"errors"
	"testing"
)

type fakeEntry struct {
	Bid        int    `json:"bid"`
	Ask        int    `json:"ask"`
	Marketable bool   `json:"marketable"`
	Text       string `json:"text"`
}

func TestStore_LoadMissingReturnsNotFound(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var out map[string]fakeEntry
	if err := s.Load("missing.json", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	in := map[string]fakeEntry{
		"753-Sack of Gems":      {Bid: 42, Ask: 55, Marketable: true, Text: "0,55€"},
		"290970-1849 Booster":   {Bid: -1, Ask: -1},
		"753-Foil Trading Card": {Bid: 0, Ask: 133, Text: "1,33€"},
	}
	if err := s.Save("orderbook.json", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out map[string]fakeEntry
	if err := s.Load("orderbook.json", &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len(out)=%d want %d", len(out), len(in))
	}
	for k, v := range in {
		if out[k] != v {
			t.Fatalf("out[%q]=%+v want %+v", k, out[k], v)
		}
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Save("x.json", map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("x.json", map[string]int{"a": 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out map[string]int
	if err := s.Load("x.json", &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || out["a"] != 3 {
		t.Fatalf("out=%v want map[a:3]", out)
	}
}
