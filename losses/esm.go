// Package losses implements the loss terms used to steer a soft sequence
// during design: a masked pseudo-likelihood score under an ESM-2 style
// protein language model, and penalties that pin chosen positions.
package losses

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	design "github.com/hgbrian/boltz-binder-design"
	"github.com/hgbrian/boltz-binder-design/esm"
	"github.com/hgbrian/boltz-binder-design/tokens"
)

// maskRatioTrain is the effective fraction of tokens replaced by the mask
// token during ESM-2 pretraining: 15% of positions were selected, 80% of
// those got the mask token.
const maskRatioTrain = 0.15 * 0.8

// LanguageModel is the scorer's view of a pretrained masked language model.
type LanguageModel interface {
	// Vocab is the model vocabulary size.
	Vocab() int
	// SpecialTokens returns the begin, end and mask token indices.
	SpecialTokens() (cls, eos, mask int)
	// LookupToken maps a residue symbol to its model vocabulary index.
	LookupToken(aa rune) (int, bool)
	// Bind materializes the pretrained parameters into a graph.
	Bind(g *G.ExprGraph) (BoundModel, error)
}

// BoundModel is a language model bound into one expression graph.
type BoundModel interface {
	// Embedding is the (V, D) embedding weight node.
	Embedding() *G.Node
	// Trunk folds an (L, D) embedding through the layer stack and final
	// norm. isPad flags positions to exclude from attention.
	Trunk(x *G.Node, isPad []bool) (*G.Node, error)
	// Logits maps each row of an (L, D) hidden state to vocabulary logits.
	Logits(x *G.Node) (*G.Node, error)
}

// esmModel adapts *esm.Weights to the LanguageModel boundary.
type esmModel struct {
	*esm.Weights
}

func (m esmModel) Bind(g *G.ExprGraph) (BoundModel, error) { return m.Weights.Bind(g) }

// TokenMatrix builds the constant (design vocab, model vocab) projection
// mapping design token i to its one-hot model token. A design symbol without
// a model counterpart is a configuration error, reported immediately.
func TokenMatrix(designTokens string, lookup func(aa rune) (int, bool), vocab int) (*tensor.Dense, error) {
	backing := make([]float32, len(designTokens)*vocab)
	for i, tok := range designTokens {
		idx, ok := lookup(tok)
		if !ok {
			return nil, errors.Errorf("losses: design token %q has no model vocabulary entry", string(tok))
		}
		if idx < 0 || idx >= vocab {
			return nil, errors.Errorf("losses: design token %q maps to index %d outside vocabulary of %d", string(tok), idx, vocab)
		}
		backing[i*vocab+idx] = 1
	}
	return tensor.New(tensor.WithShape(len(designTokens), vocab), tensor.WithBacking(backing)), nil
}

// MaskRescale is the embedding rescaling applied when scoring with exactly
// one masked token in a bracketed sequence of length n+2. Pretraining masked
// maskRatioTrain of the input on average; scoring masks 1/(n+2), so the
// embedding sum feeding each layer must be rescaled to match the pretraining
// statistics.
func MaskRescale(n int) float32 {
	return (1 - maskRatioTrain) / (1 - 1/float32(n+2))
}

// ESM2PseudoLikelihood scores a soft sequence by the mean log-likelihood the
// model assigns each true token when that position is masked. The loss is
// the negated mean, so minimizing it maximizes the pseudo-likelihood.
type ESM2PseudoLikelihood struct {
	model LanguageModel
	tmat  *tensor.Dense
	vocab int

	cls, eos, mask int

	// StopGrad evaluates the masked log-likelihoods on a private graph and
	// re-enters them as constants, so no gradient flows through the trunk;
	// only the token projection upstream stays differentiable. Requires the
	// sequence node to carry a value when Loss is called.
	StopGrad bool
}

// NewESM2PseudoLikelihood builds the scorer for an ESM-2 weight set.
func NewESM2PseudoLikelihood(w *esm.Weights, stopGrad bool) (*ESM2PseudoLikelihood, error) {
	return NewPseudoLikelihood(esmModel{w}, stopGrad)
}

// NewPseudoLikelihood builds the scorer for any masked language model. The
// token projection is constructed once here and never changes.
func NewPseudoLikelihood(m LanguageModel, stopGrad bool) (*ESM2PseudoLikelihood, error) {
	tmat, err := TokenMatrix(tokens.Tokens, m.LookupToken, m.Vocab())
	if err != nil {
		return nil, err
	}
	cls, eos, mask := m.SpecialTokens()
	for _, idx := range []int{cls, eos, mask} {
		if idx < 0 || idx >= m.Vocab() {
			return nil, errors.Errorf("losses: special token index %d outside vocabulary of %d", idx, m.Vocab())
		}
	}
	return &ESM2PseudoLikelihood{
		model:    m,
		tmat:     tmat,
		vocab:    m.Vocab(),
		cls:      cls,
		eos:      eos,
		mask:     mask,
		StopGrad: stopGrad,
	}, nil
}

// Loss implements design.LossTerm.
func (l *ESM2PseudoLikelihood) Loss(seq *G.Node) (*G.Node, design.Aux, error) {
	shp := seq.Shape()
	if len(shp) != 2 || shp[1] != tokens.Count {
		return nil, nil, errors.Errorf("losses: expected a (N, %d) soft sequence, got %v", tokens.Count, shp)
	}
	n := shp[0]

	var b graphb
	projected := b.mul(seq, G.NewConstant(l.tmat)) // (n, vocab)
	if b.err != nil {
		return nil, nil, b.err
	}

	var ll *G.Node
	if l.StopGrad {
		frozen, err := l.frozenLogLikelihoods(seq, n)
		if err != nil {
			return nil, nil, err
		}
		ll = G.NewConstant(frozen)
	} else {
		m, err := l.model.Bind(seq.Graph())
		if err != nil {
			return nil, nil, errors.Wrap(err, "binding language model")
		}
		if ll, err = l.maskedLogLikelihoods(m, projected, n); err != nil {
			return nil, nil, err
		}
	}

	pll := b.mean(b.sum(b.had(ll, projected), 1))
	loss := b.neg(pll)
	if b.err != nil {
		return nil, nil, b.err
	}
	return loss, design.Aux{"esm_pll": pll}, nil
}

// maskedLogLikelihoods builds the (n, vocab) stack of per position masked
// log-probability rows: for each interior position of the bracketed sequence
// one full trunk pass with that position hard-masked and its embedding row
// zeroed.
func (l *ESM2PseudoLikelihood) maskedLogLikelihoods(m BoundModel, projected *G.Node, n int) (*G.Node, error) {
	var b graphb
	bos := G.NewConstant(onehotRow(l.cls, l.vocab))
	eos := G.NewConstant(onehotRow(l.eos, l.vocab))
	maskRow := G.NewConstant(onehotRow(l.mask, l.vocab))
	bracketed := b.concat(0, bos, projected, eos) // (n+2, vocab)
	scale := G.NewConstant(MaskRescale(n))

	rows := make([]*G.Node, 0, n)
	for i := 1; i <= n; i++ {
		// hard mask substitution at i: a discrete edit, not a soft blend.
		// Single-row slices come back rank 1, so force both pieces back to
		// matrices before concatenating.
		prefix := b.reshape(b.slice(bracketed, G.S(0, i)), tensor.Shape{i, l.vocab})
		suffix := b.reshape(b.slice(bracketed, G.S(i+1, n+2)), tensor.Shape{n + 1 - i, l.vocab})
		masked := b.concat(0, prefix, maskRow, suffix)

		emb := b.mul(masked, m.Embedding())              // (n+2, d)
		emb = b.mul(G.NewConstant(dropRow(n+2, i)), emb) // zero the masked row
		emb = b.mul(scale, emb)

		h := b.do(func() (*G.Node, error) { return m.Trunk(emb, nil) })
		logits := b.do(func() (*G.Node, error) { return m.Logits(h) })
		logp := b.log(b.softmax(logits))
		row := b.slice(logp, G.S(i))
		rows = append(rows, b.reshape(row, tensor.Shape{1, l.vocab}))
	}
	ll := b.concat(0, rows...)
	if b.err != nil {
		return nil, b.err
	}
	return ll, nil
}

// frozenLogLikelihoods evaluates the masked log-likelihood stack on a
// private graph and returns it as a plain tensor.
func (l *ESM2PseudoLikelihood) frozenLogLikelihoods(seq *G.Node, n int) (*tensor.Dense, error) {
	val := seq.Value()
	if val == nil {
		return nil, errors.New("losses: stop-grad scoring needs a sequence value bound at graph build time")
	}
	sv, ok := val.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("losses: unexpected sequence value type %T", val)
	}

	g := G.NewGraph()
	in := G.NodeFromAny(g, sv.Clone().(*tensor.Dense), G.WithName("soft_seq_frozen"))
	var b graphb
	projected := b.mul(in, G.NewConstant(l.tmat))
	if b.err != nil {
		return nil, b.err
	}
	m, err := l.model.Bind(g)
	if err != nil {
		return nil, errors.Wrap(err, "binding language model")
	}
	ll, err := l.maskedLogLikelihoods(m, projected, n)
	if err != nil {
		return nil, err
	}

	var out G.Value
	G.Read(ll, &out)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "evaluating masked log-likelihoods")
	}
	return out.(*tensor.Dense).Clone().(*tensor.Dense), nil
}

// onehotRow builds a (1, v) one-hot row.
func onehotRow(idx, v int) *tensor.Dense {
	backing := make([]float32, v)
	backing[idx] = 1
	return tensor.New(tensor.WithShape(1, v), tensor.WithBacking(backing))
}

// dropRow builds the (l, l) identity with row i zeroed.
func dropRow(l, i int) *tensor.Dense {
	backing := make([]float32, l*l)
	for j := 0; j < l; j++ {
		if j != i {
			backing[j*l+j] = 1
		}
	}
	return tensor.New(tensor.WithShape(l, l), tensor.WithBacking(backing))
}
