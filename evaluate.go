package design

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Result is the outcome of one loss evaluation.
type Result struct {
	Loss float32
	Aux  map[string]float32
	Grad *tensor.Dense // d loss / d seq, same shape as the input; nil for Score
}

// Evaluate runs one loss-evaluation step: it builds a fresh graph over the
// given soft sequence, differentiates the loss with respect to it, executes
// the graph once and returns the scalar loss, resolved aux metrics and the
// input gradient. Everything built here is discarded before returning.
func Evaluate(term LossTerm, seq *tensor.Dense) (*Result, error) {
	return run(term, seq, true)
}

// Score is Evaluate without the gradient. Use it when the loss is wanted
// purely as a score.
func Score(term LossTerm, seq *tensor.Dense) (*Result, error) {
	return run(term, seq, false)
}

func run(term LossTerm, seq *tensor.Dense, withGrad bool) (*Result, error) {
	g := G.NewGraph()
	in := G.NodeFromAny(g, seq, G.WithName("soft_seq"))

	loss, aux, err := term.Loss(in)
	if err != nil {
		return nil, errors.Wrap(err, "building loss graph")
	}

	var lossVal G.Value
	G.Read(loss, &lossVal)
	auxVals := make(map[string]*G.Value, len(aux))
	for k, n := range aux {
		var v G.Value
		G.Read(n, &v)
		auxVals[k] = &v
	}

	if withGrad {
		if _, err := G.Grad(loss, in); err != nil {
			return nil, errors.Wrap(err, "differentiating loss")
		}
	}

	var vm G.VM
	if withGrad {
		vm = G.NewTapeMachine(g, G.BindDualValues(in))
	} else {
		vm = G.NewTapeMachine(g)
	}
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "running loss graph")
	}

	res := &Result{
		Loss: lossVal.Data().(float32),
		Aux:  make(map[string]float32, len(auxVals)),
	}
	for k, v := range auxVals {
		res.Aux[k] = (*v).Data().(float32)
	}
	if withGrad {
		grad, err := in.Grad()
		if err != nil {
			return nil, errors.Wrap(err, "reading input gradient")
		}
		res.Grad = grad.(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return res, nil
}
