package esm

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the element type used throughout the trunk.
var Float = G.Float32

const ropeBase = 10000.0

// Model is a Weights set bound into an expression graph. Bind once per
// graph; the weight nodes are shared by every trunk application built on
// that graph.
type Model struct {
	conf Config
	g    *G.ExprGraph

	embedding    *G.Node
	layers       []boundLayer
	finalNorm    boundNorm
	headW, headB *G.Node

	weightNodes G.Nodes
}

type boundNorm struct {
	gamma, beta *G.Node
}

type boundLayer struct {
	attnNorm       boundNorm
	wq, wk, wv, wo *G.Node
	bq, bk, bv, bo *G.Node

	ffnNorm        boundNorm
	w1, b1, w2, b2 *G.Node
}

// Bind materializes the weights as variable nodes of g.
func (w *Weights) Bind(g *G.ExprGraph) (*Model, error) {
	if !w.Config.IsValid() {
		return nil, errors.Errorf("esm: invalid trunk config %+v", w.Config)
	}
	m := &Model{conf: w.Config, g: g}
	m.embedding = m.bind(g, "esm_embedding", w.Embedding)
	for i := range w.Layers {
		lw := &w.Layers[i]
		pre := fmt.Sprintf("esm_l%d_", i)
		m.layers = append(m.layers, boundLayer{
			attnNorm: boundNorm{
				gamma: m.bind(g, pre+"attn_norm_g", lw.AttnNorm.Gamma),
				beta:  m.bind(g, pre+"attn_norm_b", lw.AttnNorm.Beta),
			},
			wq: m.bind(g, pre+"wq", lw.Wq),
			wk: m.bind(g, pre+"wk", lw.Wk),
			wv: m.bind(g, pre+"wv", lw.Wv),
			wo: m.bind(g, pre+"wo", lw.Wo),
			bq: m.bind(g, pre+"bq", lw.Bq),
			bk: m.bind(g, pre+"bk", lw.Bk),
			bv: m.bind(g, pre+"bv", lw.Bv),
			bo: m.bind(g, pre+"bo", lw.Bo),
			ffnNorm: boundNorm{
				gamma: m.bind(g, pre+"ffn_norm_g", lw.FFNNorm.Gamma),
				beta:  m.bind(g, pre+"ffn_norm_b", lw.FFNNorm.Beta),
			},
			w1: m.bind(g, pre+"w1", lw.W1),
			b1: m.bind(g, pre+"b1", lw.B1),
			w2: m.bind(g, pre+"w2", lw.W2),
			b2: m.bind(g, pre+"b2", lw.B2),
		})
	}
	m.finalNorm = boundNorm{
		gamma: m.bind(g, "esm_final_norm_g", w.FinalNorm.Gamma),
		beta:  m.bind(g, "esm_final_norm_b", w.FinalNorm.Beta),
	}
	m.headW = m.bind(g, "esm_head_w", w.Head.W)
	m.headB = m.bind(g, "esm_head_b", w.Head.B)
	return m, nil
}

func (m *Model) bind(g *G.ExprGraph, name string, t *tensor.Dense) *G.Node {
	n := G.NodeFromAny(g, t, G.WithName(name))
	m.weightNodes = append(m.weightNodes, n)
	return n
}

// Embedding returns the (V, D) embedding weight node.
func (m *Model) Embedding() *G.Node { return m.embedding }

// WeightNodes returns every bound parameter node.
func (m *Model) WeightNodes() G.Nodes { return m.weightNodes }

// Trunk folds the embedding tensor through the layer stack and the final
// norm. isPad marks key positions to exclude from attention; nil or all
// false means dense attention over the full length.
func (m *Model) Trunk(x *G.Node, isPad []bool) (*G.Node, error) {
	shp := x.Shape()
	if len(shp) != 2 || shp[1] != m.conf.EmbedDim {
		return nil, errors.Errorf("esm: trunk input must be (L, %d), got %v", m.conf.EmbedDim, shp)
	}
	l := shp[0]
	if isPad != nil && len(isPad) != l {
		return nil, errors.Errorf("esm: pad mask length %d does not match input length %d", len(isPad), l)
	}

	var b graphb
	rope := newRopeTables(l, m.conf.EmbedDim/m.conf.NumHeads)
	mask := padMask(l, isPad)
	for i := range m.layers {
		x = m.layers[i].apply(&b, m.conf, x, rope, mask)
	}
	x = layerNorm(&b, x, m.finalNorm, m.conf.Eps)
	if b.err != nil {
		return nil, b.err
	}
	return x, nil
}

// Logits maps each hidden state row to vocabulary logits.
func (m *Model) Logits(x *G.Node) (*G.Node, error) {
	shp := x.Shape()
	if len(shp) != 2 || shp[1] != m.conf.EmbedDim {
		return nil, errors.Errorf("esm: logit head input must be (L, %d), got %v", m.conf.EmbedDim, shp)
	}
	var b graphb
	out := b.add(b.mul(x, m.headW), tile(&b, shp[0], m.headB))
	if b.err != nil {
		return nil, b.err
	}
	return out, nil
}

func (ly *boundLayer) apply(b *graphb, conf Config, x *G.Node, rope ropeTables, mask *G.Node) *G.Node {
	h := layerNorm(b, x, ly.attnNorm, conf.Eps)
	x = b.add(x, ly.attention(b, conf, h, rope, mask))
	h = layerNorm(b, x, ly.ffnNorm, conf.Eps)
	return b.add(x, ly.feedForward(b, h))
}

func (ly *boundLayer) attention(b *graphb, conf Config, x *G.Node, rope ropeTables, mask *G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	l := x.Shape()[0]
	heads := conf.NumHeads
	dh := conf.EmbedDim / heads

	q := b.add(b.mul(x, ly.wq), tile(b, l, ly.bq))
	k := b.add(b.mul(x, ly.wk), tile(b, l, ly.bk))
	v := b.add(b.mul(x, ly.wv), tile(b, l, ly.bv))

	scale := G.NewConstant(1 / math32.Sqrt(float32(dh)))
	outs := make([]*G.Node, 0, heads)
	for h := 0; h < heads; h++ {
		qh := b.slice(q, G.S(0, l), G.S(h*dh, (h+1)*dh))
		kh := b.slice(k, G.S(0, l), G.S(h*dh, (h+1)*dh))
		vh := b.slice(v, G.S(0, l), G.S(h*dh, (h+1)*dh))

		qh = rotate(b, qh, rope)
		kh = rotate(b, kh, rope)

		scores := b.mul(scale, b.mul(qh, b.transpose(kh)))
		if mask != nil {
			scores = b.add(scores, mask)
		}
		outs = append(outs, b.mul(b.softmax(scores), vh))
	}
	cat := b.concat(1, outs...)
	return b.add(b.mul(cat, ly.wo), tile(b, l, ly.bo))
}

func (ly *boundLayer) feedForward(b *graphb, x *G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	l := x.Shape()[0]
	h := b.add(b.mul(x, ly.w1), tile(b, l, ly.b1))
	h = gelu(b, h)
	return b.add(b.mul(h, ly.w2), tile(b, l, ly.b2))
}

// layerNorm normalizes each row of x. Row means and variances are formed
// with a constant averaging matrix so the whole thing stays inside plain
// matrix ops.
func layerNorm(b *graphb, x *G.Node, nw boundNorm, eps float32) *G.Node {
	if b.err != nil {
		return nil
	}
	l, d := x.Shape()[0], x.Shape()[1]
	avg := G.NewConstant(avgMatrix(d))
	mu := b.mul(x, avg)
	xc := b.sub(x, mu)
	varRep := b.mul(b.had(xc, xc), avg)
	den := b.sqrt(b.add(varRep, G.NewConstant(eps)))
	norm := b.div(xc, den)
	return b.add(b.had(norm, tile(b, l, nw.gamma)), tile(b, l, nw.beta))
}

// gelu is the tanh approximation used by ESM-2.
func gelu(b *graphb, x *G.Node) *G.Node {
	x3 := b.had(b.had(x, x), x)
	inner := b.add(x, b.mul(G.NewConstant(float32(0.044715)), x3))
	t := b.tanh(b.mul(G.NewConstant(float32(0.7978845608)), inner))
	return b.mul(G.NewConstant(float32(0.5)), b.had(x, b.add(G.NewConstant(float32(1)), t)))
}

// tile replicates a (1, D) row node down l rows.
func tile(b *graphb, l int, row *G.Node) *G.Node {
	ones := tensor.New(tensor.WithShape(l, 1), tensor.WithBacking(onesBacking(l)))
	return b.mul(G.NewConstant(ones), row)
}

// rotate applies rotary position embeddings to one head's (L, dh) slice.
func rotate(b *graphb, x *G.Node, rope ropeTables) *G.Node {
	return b.add(b.had(x, rope.cos), b.had(b.mul(x, rope.rot), rope.sin))
}

type ropeTables struct {
	cos, sin *G.Node // (L, dh)
	rot      *G.Node // (dh, dh): x@rot = concat(-x2, x1)
}

func newRopeTables(l, dh int) ropeTables {
	half := dh / 2
	cosB := make([]float32, l*dh)
	sinB := make([]float32, l*dh)
	for p := 0; p < l; p++ {
		for j := 0; j < half; j++ {
			theta := float64(p) * math.Pow(ropeBase, -2*float64(j)/float64(dh))
			c, s := float32(math.Cos(theta)), float32(math.Sin(theta))
			cosB[p*dh+j], cosB[p*dh+half+j] = c, c
			sinB[p*dh+j], sinB[p*dh+half+j] = s, s
		}
	}
	rotB := make([]float32, dh*dh)
	for j := 0; j < half; j++ {
		rotB[(half+j)*dh+j] = -1
		rotB[j*dh+half+j] = 1
	}
	mk := func(backing []float32, rows, cols int) *G.Node {
		return G.NewConstant(tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing)))
	}
	return ropeTables{
		cos: mk(cosB, l, dh),
		sin: mk(sinB, l, dh),
		rot: mk(rotB, dh, dh),
	}
}

// padMask builds the additive attention mask, or nil for dense attention.
func padMask(l int, isPad []bool) *G.Node {
	any := false
	for _, p := range isPad {
		any = any || p
	}
	if !any {
		return nil
	}
	backing := make([]float32, l*l)
	for i := 0; i < l; i++ {
		for j := 0; j < l; j++ {
			if isPad[j] {
				backing[i*l+j] = -1e9
			}
		}
	}
	return G.NewConstant(tensor.New(tensor.WithShape(l, l), tensor.WithBacking(backing)))
}

func avgMatrix(d int) *tensor.Dense {
	backing := make([]float32, d*d)
	for i := range backing {
		backing[i] = 1 / float32(d)
	}
	return tensor.New(tensor.WithShape(d, d), tensor.WithBacking(backing))
}

func onesBacking(n int) []float32 {
	backing := make([]float32, n)
	for i := range backing {
		backing[i] = 1
	}
	return backing
}
