package shipwright

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	voxel "nickandperla.net/voxel"
)

func TestTokenizeLongestMatch(t *testing.T) {
	alphabet := shipAlphabet()
	alphabet.RegisterNonterminals([]string{"corridor2"})

	tokens, err := alphabet.Tokenize("corridor2corridor>")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	expected := []string{"corridor2", "corridor", ">"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Tokens [%v] do not match expected [%v]", tokens, expected)
	}
}

func TestTokenizeWhitespace(t *testing.T) {
	alphabet := shipAlphabet()

	tokens, err := alphabet.Tokenize("  c > a\n\t> t ")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	expected := []string{"c", ">", "a", ">", "t"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Tokens [%v] do not match expected [%v]", tokens, expected)
	}
}

func TestTokenizeUnknownSymbol(t *testing.T) {
	alphabet := shipAlphabet()

	_, err := alphabet.Tokenize("c>zork>a")
	if err == nil {
		t.Fatal("Expected an error for an unknown symbol")
	}
	var unknown *UnknownSymbolError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownSymbolError, got %T", err)
	}
	if unknown.Token != "zork" {
		t.Errorf("Offending token [%s] is not expected value [zork]", unknown.Token)
	}
	if unknown.Index != 2 {
		t.Errorf("Offending index [%d] is not expected value [2]", unknown.Index)
	}
}

func TestAlphabetAlwaysHasBrackets(t *testing.T) {
	alphabet := NewAlphabet(map[string]voxel.Atom{})
	for _, sym := range []string{PushSymbol, PopSymbol} {
		atom, ok := alphabet.Atom(sym)
		if !ok {
			t.Fatalf("Bracket symbol [%s] missing from alphabet", sym)
		}
		if sym == PushSymbol && atom.Kind != voxel.Push {
			t.Errorf("Symbol [%s] kind [%v] is not push", sym, atom.Kind)
		}
	}
}

func TestLoadAlphabet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alphabet.json")
	raw := `{
		">": {"action": "move", "direction": [1, 0, 0]},
		"!": {"action": "rotate", "plane": "xy", "sense": "cw"},
		"c": {"action": "place", "block": "cockpit", "functional": true},
		"w": {"action": "place", "block": "wing", "dims": [1, 1, 2]}
	}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write alphabet file: %v", err)
	}

	alphabet, err := LoadAlphabet(path)
	if err != nil {
		t.Fatalf("LoadAlphabet failed: %v", err)
	}

	atom, ok := alphabet.Atom("w")
	if !ok {
		t.Fatal("Symbol [w] missing after load")
	}
	if atom.Kind != voxel.Place || atom.Dims != voxel.V(1, 1, 2) {
		t.Errorf("Atom [w] loaded wrong: %v", atom)
	}
	if atom.Functional {
		t.Error("Atom [w] should not be functional")
	}
	c, _ := alphabet.Atom("c")
	if !c.Functional {
		t.Error("Atom [c] should be functional")
	}
}

func TestLoadAlphabetMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alphabet.json")
	if err := os.WriteFile(path, []byte(`{"x": {"action": "teleport"}}`), 0644); err != nil {
		t.Fatalf("Failed to write alphabet file: %v", err)
	}
	if _, err := LoadAlphabet(path); err == nil {
		t.Error("Expected an error for an unrecognized action")
	}
}
