package design

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

type weightedTerm struct {
	name   string
	weight float32
	term   LossTerm
}

// LinearCombination sums weighted loss terms into a single scalar loss.
// Aux maps of the constituents are merged; each term's own unweighted loss
// additionally appears under the term's name.
type LinearCombination struct {
	terms []weightedTerm
}

// Add appends a weighted term and returns the combination for chaining.
func (c *LinearCombination) Add(name string, weight float32, term LossTerm) *LinearCombination {
	c.terms = append(c.terms, weightedTerm{name: name, weight: weight, term: term})
	return c
}

// Loss implements LossTerm.
func (c *LinearCombination) Loss(seq *G.Node) (*G.Node, Aux, error) {
	if len(c.terms) == 0 {
		return nil, nil, errors.New("design: empty linear combination")
	}

	var total *G.Node
	aux := make(Aux)
	for _, wt := range c.terms {
		l, a, err := wt.term.Loss(seq)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "term %q", wt.name)
		}
		for k, v := range a {
			aux[k] = v
		}
		aux[wt.name] = l

		scaled, err := G.Mul(G.NewConstant(wt.weight), l)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "scaling term %q", wt.name)
		}
		if total == nil {
			total = scaled
			continue
		}
		if total, err = G.Add(total, scaled); err != nil {
			return nil, nil, errors.Wrapf(err, "accumulating term %q", wt.name)
		}
	}
	return total, aux, nil
}
