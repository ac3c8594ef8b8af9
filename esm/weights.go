package esm

import (
	"math/rand"

	"github.com/chewxy/math32"
	"gorgonia.org/tensor"
)

// NormWeights holds layer norm scale and shift, each shaped (1, D).
type NormWeights struct {
	Gamma *tensor.Dense
	Beta  *tensor.Dense
}

// LayerWeights holds one transformer layer's parameters.
type LayerWeights struct {
	AttnNorm       NormWeights
	Wq, Wk, Wv, Wo *tensor.Dense // (D, D)
	Bq, Bk, Bv, Bo *tensor.Dense // (1, D)

	FFNNorm NormWeights
	W1      *tensor.Dense // (D, F)
	B1      *tensor.Dense // (1, F)
	W2      *tensor.Dense // (F, D)
	B2      *tensor.Dense // (1, D)
}

// HeadWeights is the logit head mapping hidden states to vocabulary logits.
type HeadWeights struct {
	W *tensor.Dense // (D, V)
	B *tensor.Dense // (1, V)
}

// Weights is a full pretrained parameter set. It is read only once
// constructed: binding it into graphs never mutates it, so a single Weights
// may back any number of concurrent loss evaluations.
type Weights struct {
	Config

	Embedding *tensor.Dense // (V, D)
	Layers    []LayerWeights
	FinalNorm NormWeights
	Head      HeadWeights
}

// Vocab returns the vocabulary size the trunk operates over.
func (w *Weights) Vocab() int { return w.Config.VocabSize }

// SpecialTokens returns the bracketing and mask token indices.
func (w *Weights) SpecialTokens() (cls, eos, mask int) { return ClsIdx, EosIdx, MaskIdx }

// LookupToken maps a residue symbol to its alphabet index.
func (w *Weights) LookupToken(aa rune) (int, bool) { return Lookup(aa) }

// RandomWeights builds a Glorot-initialized parameter set. It stands in for
// an externally loaded checkpoint in tests and demos.
func RandomWeights(conf Config, seed int64) *Weights {
	r := rand.New(rand.NewSource(seed))
	d, f, v := conf.EmbedDim, conf.FFDim, conf.VocabSize

	w := &Weights{
		Config:    conf,
		Embedding: glorot(r, v, d),
		FinalNorm: onesNorm(d),
		Head: HeadWeights{
			W: glorot(r, d, v),
			B: zeros(1, v),
		},
	}
	for i := 0; i < conf.NumLayers; i++ {
		w.Layers = append(w.Layers, LayerWeights{
			AttnNorm: onesNorm(d),
			Wq:       glorot(r, d, d),
			Wk:       glorot(r, d, d),
			Wv:       glorot(r, d, d),
			Wo:       glorot(r, d, d),
			Bq:       zeros(1, d),
			Bk:       zeros(1, d),
			Bv:       zeros(1, d),
			Bo:       zeros(1, d),
			FFNNorm:  onesNorm(d),
			W1:       glorot(r, d, f),
			B1:       zeros(1, f),
			W2:       glorot(r, f, d),
			B2:       zeros(1, d),
		})
	}
	return w
}

func glorot(r *rand.Rand, rows, cols int) *tensor.Dense {
	limit := math32.Sqrt(6 / float32(rows+cols))
	backing := make([]float32, rows*cols)
	for i := range backing {
		backing[i] = (2*r.Float32() - 1) * limit
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

func zeros(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.Of(tensor.Float32))
}

func onesNorm(d int) NormWeights {
	backing := make([]float32, d)
	for i := range backing {
		backing[i] = 1
	}
	return NormWeights{
		Gamma: tensor.New(tensor.WithShape(1, d), tensor.WithBacking(backing)),
		Beta:  zeros(1, d),
	}
}
