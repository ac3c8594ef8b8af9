package esm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAlphabet(t *testing.T) {
	if len(alphabet) != AlphabetSize {
		t.Fatalf("alphabet has %d entries, want %d", len(alphabet), AlphabetSize)
	}
	if diff := cmp.Diff([]string{"<cls>", "<pad>", "<eos>", "<unk>"}, alphabet[:4]); diff != "" {
		t.Errorf("leading special tokens mismatch:\n%s", diff)
	}
	if alphabet[MaskIdx] != "<mask>" {
		t.Errorf("mask token at %d is %q", MaskIdx, alphabet[MaskIdx])
	}
}

func TestLookup(t *testing.T) {
	cases := []struct {
		aa   rune
		want int
	}{
		{'L', 4},
		{'A', 5},
		{'C', 23},
		{'X', 24},
		{'-', 30},
	}
	for _, c := range cases {
		got, ok := Lookup(c.aa)
		if !ok {
			t.Errorf("Lookup(%q) not found", c.aa)
			continue
		}
		if got != c.want {
			t.Errorf("Lookup(%q) = %d, want %d", c.aa, got, c.want)
		}
	}
	if _, ok := Lookup('1'); ok {
		t.Error("Lookup('1') should not resolve")
	}
}

func TestSymbol(t *testing.T) {
	for i := 0; i < AlphabetSize; i++ {
		if Symbol(i) == "<invalid>" {
			t.Errorf("Symbol(%d) should be valid", i)
		}
	}
	if Symbol(-1) != "<invalid>" || Symbol(AlphabetSize) != "<invalid>" {
		t.Error("out of range indices should report <invalid>")
	}
}
