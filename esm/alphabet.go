package esm

// The ESM-2 token listing. Index order matters: pretrained embedding rows and
// logit head columns are laid out against exactly this listing, so it is a
// fixed configuration table, not something to derive from the design
// vocabulary. Verified against the published ESM-2 alphabet.
var alphabet = []string{
	"<cls>", "<pad>", "<eos>", "<unk>",
	"L", "A", "G", "V", "S", "E", "R", "T", "I", "D", "P", "K",
	"Q", "N", "F", "Y", "M", "H", "W", "C",
	"X", "B", "U", "Z", "O",
	".", "-", "<null_1>", "<mask>",
}

// Special token indices within the alphabet.
const (
	ClsIdx  = 0
	PadIdx  = 1
	EosIdx  = 2
	UnkIdx  = 3
	MaskIdx = 32
)

// AlphabetSize is the ESM-2 vocabulary size.
const AlphabetSize = 33

var alphabetIdx = func() map[string]int {
	m := make(map[string]int, len(alphabet))
	for i, s := range alphabet {
		m[s] = i
	}
	return m
}()

// Lookup returns the alphabet index of a single-letter residue symbol.
func Lookup(aa rune) (int, bool) {
	idx, ok := alphabetIdx[string(aa)]
	return idx, ok
}

// Symbol returns the token string at an alphabet index.
func Symbol(idx int) string {
	if idx < 0 || idx >= len(alphabet) {
		return "<invalid>"
	}
	return alphabet[idx]
}
