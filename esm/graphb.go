package esm

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graphb latches the first error of a chain of graph building calls, so the
// trunk construction reads straight through.
type graphb struct {
	err error
}

func (b *graphb) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	if retVal, b.err = f(); b.err != nil {
		b.err = errors.WithStack(b.err)
	}
	return
}

func (b *graphb) mul(x, y *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Mul(x, y) })
}

func (b *graphb) add(x, y *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Add(x, y) })
}

func (b *graphb) sub(x, y *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Sub(x, y) })
}

func (b *graphb) had(x, y *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.HadamardProd(x, y) })
}

func (b *graphb) div(x, y *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.HadamardDiv(x, y) })
}

func (b *graphb) sqrt(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Sqrt(x) })
}

func (b *graphb) tanh(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Tanh(x) })
}

func (b *graphb) softmax(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.SoftMax(x, 1) })
}

func (b *graphb) transpose(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Transpose(x, 1, 0) })
}

func (b *graphb) slice(x *G.Node, slices ...tensor.Slice) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Slice(x, slices...) })
}

func (b *graphb) concat(axis int, ns ...*G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Concat(axis, ns...) })
}
