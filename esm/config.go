package esm

// Config describes the shape of an ESM-2 style trunk.
type Config struct {
	VocabSize int // token vocabulary size
	EmbedDim  int // residual stream width
	NumLayers int // transformer layer count
	NumHeads  int // attention heads per layer
	FFDim     int // feed forward hidden width

	Eps float32 // layer norm epsilon
}

// DefaultConf mirrors the smallest published ESM-2 trunk (t6-8M).
func DefaultConf() Config {
	return Config{
		VocabSize: AlphabetSize,
		EmbedDim:  320,
		NumLayers: 6,
		NumHeads:  20,
		FFDim:     1280,
		Eps:       1e-5,
	}
}

// TinyConf is a trunk small enough for tests.
func TinyConf() Config {
	return Config{
		VocabSize: AlphabetSize,
		EmbedDim:  16,
		NumLayers: 2,
		NumHeads:  2,
		FFDim:     32,
		Eps:       1e-5,
	}
}

func (c Config) IsValid() bool {
	headDim := 0
	if c.NumHeads > 0 {
		headDim = c.EmbedDim / c.NumHeads
	}
	return c.VocabSize > MaskIdx &&
		c.EmbedDim >= 2 &&
		c.NumLayers >= 1 &&
		c.NumHeads >= 1 &&
		c.EmbedDim%c.NumHeads == 0 &&
		headDim%2 == 0 && // rotary embeddings pair up head dimensions
		c.FFDim >= 1 &&
		c.Eps > 0
}
