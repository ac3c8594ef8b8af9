package losses

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	design "github.com/hgbrian/boltz-binder-design"
	"github.com/hgbrian/boltz-binder-design/tokens"
)

// SetPositions precomposes an inner loss with the expansion of a
// variable-positions-only soft sequence into the full sequence over a fixed
// wildtype. Optimizing only the variable rows removes the need for
// constraint penalties. Read the full sequence back with SequenceDense after
// optimization.
type SetPositions struct {
	frozen   *tensor.Dense // (N, vocab): one-hot wildtype, zero rows at variable positions
	scatter  *tensor.Dense // (N, M): 0/1, column k routes variable row k to its position
	variable []int
	inner    design.LossTerm
}

// SetPositionsFromSequence fixes the standard residues of wildtype and
// leaves 'X' positions variable.
func SetPositionsFromSequence(wildtype string, inner design.LossTerm) (*SetPositions, error) {
	if inner == nil {
		return nil, errors.New("losses: SetPositions needs an inner loss")
	}
	n := len(wildtype)
	if n == 0 {
		return nil, errors.New("losses: empty wildtype sequence")
	}

	var variable []int
	frozen := make([]float32, n*tokens.Count)
	for i := 0; i < n; i++ {
		if wildtype[i] == 'X' {
			variable = append(variable, i)
			continue
		}
		idx, err := tokens.Index(wildtype[i])
		if err != nil {
			return nil, errors.Wrapf(err, "wildtype position %d", i)
		}
		frozen[i*tokens.Count+idx] = 1
	}
	if len(variable) == 0 {
		return nil, errors.New("losses: wildtype has no variable ('X') positions")
	}

	scatter := make([]float32, n*len(variable))
	for k, pos := range variable {
		scatter[pos*len(variable)+k] = 1
	}
	return &SetPositions{
		frozen:   tensor.New(tensor.WithShape(n, tokens.Count), tensor.WithBacking(frozen)),
		scatter:  tensor.New(tensor.WithShape(n, len(variable)), tensor.WithBacking(scatter)),
		variable: variable,
		inner:    inner,
	}, nil
}

// VariablePositions returns the wildtype indices left free to design.
func (s *SetPositions) VariablePositions() []int {
	out := make([]int, len(s.variable))
	copy(out, s.variable)
	return out
}

// Loss implements design.LossTerm. seq holds only the variable rows,
// shaped (M, vocab).
func (s *SetPositions) Loss(seq *G.Node) (*G.Node, design.Aux, error) {
	full, err := s.Sequence(seq)
	if err != nil {
		return nil, nil, err
	}
	return s.inner.Loss(full)
}

// Sequence expands the (M, vocab) variable rows into the full (N, vocab)
// sequence node: frozen one-hot rows plus the scattered variable rows. The
// expansion is linear, so gradients reach the variable rows untouched.
func (s *SetPositions) Sequence(seq *G.Node) (*G.Node, error) {
	shp := seq.Shape()
	if len(shp) != 2 || shp[0] != len(s.variable) || shp[1] != tokens.Count {
		return nil, errors.Errorf("losses: expected a (%d, %d) variable-position sequence, got %v",
			len(s.variable), tokens.Count, shp)
	}
	var b graphb
	full := b.add(b.mul(G.NewConstant(s.scatter), seq), G.NewConstant(s.frozen))
	if b.err != nil {
		return nil, b.err
	}
	return full, nil
}

// SequenceDense is the tensor-side expansion, for reading the designed
// sequence back out after optimization.
func (s *SetPositions) SequenceDense(seq *tensor.Dense) (*tensor.Dense, error) {
	shp := seq.Shape()
	if len(shp) != 2 || shp[0] != len(s.variable) || shp[1] != tokens.Count {
		return nil, errors.Errorf("losses: expected a (%d, %d) variable-position sequence, got %v",
			len(s.variable), tokens.Count, shp)
	}
	full := s.frozen.Clone().(*tensor.Dense)
	fullData := full.Data().([]float32)
	seqData := seq.Data().([]float32)
	for k, pos := range s.variable {
		copy(fullData[pos*tokens.Count:(pos+1)*tokens.Count], seqData[k*tokens.Count:(k+1)*tokens.Count])
	}
	return full, nil
}

// PositionResidue pins one position to one residue.
type PositionResidue struct {
	Pos int
	AA  byte
}

// FixedPositionsPenalty penalizes squared deviation from target residues at
// chosen positions. Softer than SetPositions but keeps the full sequence as
// the design variable.
type FixedPositionsPenalty struct {
	mask   *tensor.Dense // (N,) 0/1
	target *tensor.Dense // (N, vocab)
	length int
}

// FixedPositionsFromResidues builds the penalty for a sequence of the given
// length with the listed positions pinned.
func FixedPositionsFromResidues(length int, pins []PositionResidue) (*FixedPositionsPenalty, error) {
	if length <= 0 {
		return nil, errors.Errorf("losses: invalid sequence length %d", length)
	}
	mask := make([]float32, length)
	target := make([]float32, length*tokens.Count)
	for _, pin := range pins {
		if pin.Pos < 0 || pin.Pos >= length {
			return nil, errors.Errorf("losses: pinned position %d outside sequence of length %d", pin.Pos, length)
		}
		idx, err := tokens.Index(pin.AA)
		if err != nil {
			return nil, errors.Wrapf(err, "pinned position %d", pin.Pos)
		}
		mask[pin.Pos] = 1
		target[pin.Pos*tokens.Count+idx] = 1
	}
	return &FixedPositionsPenalty{
		mask:   tensor.New(tensor.WithShape(length), tensor.WithBacking(mask)),
		target: tensor.New(tensor.WithShape(length, tokens.Count), tensor.WithBacking(target)),
		length: length,
	}, nil
}

// Loss implements design.LossTerm.
func (p *FixedPositionsPenalty) Loss(seq *G.Node) (*G.Node, design.Aux, error) {
	shp := seq.Shape()
	if len(shp) != 2 || shp[0] != p.length || shp[1] != tokens.Count {
		return nil, nil, errors.Errorf("losses: expected a (%d, %d) soft sequence, got %v", p.length, tokens.Count, shp)
	}
	var b graphb
	diff := b.sub(seq, G.NewConstant(p.target))
	perPos := b.sum(b.square(diff), 1)
	r := b.sum(b.had(perPos, G.NewConstant(p.mask)))
	if b.err != nil {
		return nil, nil, b.err
	}
	return r, design.Aux{"fixed_position_penalty": r}, nil
}
