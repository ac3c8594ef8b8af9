package losses

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graphb latches the first graph building error, same trick as the trunk's
// builder, so the scoring pipeline reads top to bottom.
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

func (b *graphb) square(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Square(x) })
}

func (b *graphb) sum(x *G.Node, along ...int) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Sum(x, along...) })
}

func (b *graphb) mean(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Mean(x) })
}

func (b *graphb) neg(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Neg(x) })
}

func (b *graphb) log(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Log(x) })
}

func (b *graphb) softmax(x *G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.SoftMax(x, 1) })
}

func (b *graphb) slice(x *G.Node, slices ...tensor.Slice) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Slice(x, slices...) })
}

func (b *graphb) concat(axis int, ns ...*G.Node) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Concat(axis, ns...) })
}

func (b *graphb) reshape(x *G.Node, to tensor.Shape) *G.Node {
	return b.do(func() (*G.Node, error) { return G.Reshape(x, to) })
}
