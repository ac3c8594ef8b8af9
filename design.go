// Package design provides differentiable loss terms for gradient based
// protein sequence design.
//
// A design variable is a soft sequence: a (N, vocab) float32 matrix whose
// rows are probability distributions over residue identities. Loss terms
// build gorgonia expression graphs over such a sequence, so an outer
// optimizer can differentiate the combined loss with respect to the design
// variable. Loss terms themselves carry no mutable state: the pretrained
// parameters they close over are read only, and every evaluation builds and
// discards its own tensors.
package design

import (
	G "gorgonia.org/gorgonia"
)

// Aux carries named scalar nodes for logging and monitoring, alongside the
// main loss node.
type Aux map[string]*G.Node

// A LossTerm builds a scalar loss node for a soft sequence node, together
// with auxiliary metric nodes. seq must be a (N, vocab) matrix node; the
// returned loss is a scalar node of the same graph.
type LossTerm interface {
	Loss(seq *G.Node) (*G.Node, Aux, error)
}
