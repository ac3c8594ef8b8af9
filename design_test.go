package design

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// sumSquares is a minimal loss term: sum of squared entries of the soft
// sequence. Its gradient is 2*seq, which makes Evaluate easy to check.
type sumSquares struct{}

func (sumSquares) Loss(seq *G.Node) (*G.Node, Aux, error) {
	sq, err := G.Square(seq)
	if err != nil {
		return nil, nil, err
	}
	total, err := G.Sum(sq)
	if err != nil {
		return nil, nil, err
	}
	return total, Aux{"sum_squares": total}, nil
}

// sumAll sums all entries.
type sumAll struct{}

func (sumAll) Loss(seq *G.Node) (*G.Node, Aux, error) {
	total, err := G.Sum(seq)
	if err != nil {
		return nil, nil, err
	}
	return total, Aux{"sum_all": total}, nil
}

func testSeq() *tensor.Dense {
	return tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{
		1, 2, 3,
		0, -1, 2,
	}))
}

func TestEvaluate(t *testing.T) {
	assert := assert.New(t)
	res, err := Evaluate(sumSquares{}, testSeq())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDelta(19, float64(res.Loss), 1e-6)
	assert.InDelta(19, float64(res.Aux["sum_squares"]), 1e-6)
	assert.InDeltaSlice([]float32{2, 4, 6, 0, -2, 4}, res.Grad.Data().([]float32), 1e-6)
	assert.Equal([]int{2, 3}, []int(res.Grad.Shape()))
}

func TestScoreSkipsGradient(t *testing.T) {
	res, err := Score(sumAll{}, testSeq())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDelta(t, 7, float64(res.Loss), 1e-6)
	assert.Nil(t, res.Grad)
}

func TestLinearCombination(t *testing.T) {
	assert := assert.New(t)
	var lc LinearCombination
	lc.Add("squares", 2, sumSquares{}).Add("plain", 0.5, sumAll{})

	res, err := Evaluate(&lc, testSeq())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDelta(2*19+0.5*7, float64(res.Loss), 1e-5)
	assert.InDelta(19, float64(res.Aux["squares"]), 1e-5)
	assert.InDelta(7, float64(res.Aux["plain"]), 1e-5)
	assert.InDelta(19, float64(res.Aux["sum_squares"]), 1e-5)

	// gradient is the weighted sum of the term gradients: 4*x + 0.5
	assert.InDeltaSlice([]float32{4.5, 8.5, 12.5, 0.5, -3.5, 8.5}, res.Grad.Data().([]float32), 1e-5)
}

func TestLinearCombinationEmpty(t *testing.T) {
	var lc LinearCombination
	if _, err := Evaluate(&lc, testSeq()); err == nil {
		t.Fatal("an empty combination must not evaluate")
	}
}

func TestToDot(t *testing.T) {
	var lc LinearCombination
	lc.Add("pll", 1, sumSquares{}).Add("pin", 0.1, sumAll{})
	dot, err := lc.ToDot()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, want := range []string{"digraph", "pll", "pin", "0.1"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot output missing %q:\n%s", want, dot)
		}
	}
}
