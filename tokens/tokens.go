// Package tokens defines the amino acid vocabulary of the design system.
//
// A design sequence is a soft sequence: a (N, Count) float32 matrix in which
// each row is a probability distribution (possibly one-hot) over residue
// identities. The vocabulary ordering is a process-wide constant; every index
// into the design token space refers to this listing.
package tokens

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Tokens lists the design-system residues in index order.
const Tokens = "ARNDCQEGHILKMFPSTWYV"

// Count is the design vocabulary size.
const Count = len(Tokens)

// sumTol is the tolerance used when checking that a soft row sums to 1.
const sumTol = 1e-4

// Index returns the design token index of a residue.
func Index(aa byte) (int, error) {
	for i := 0; i < Count; i++ {
		if Tokens[i] == aa {
			return i, nil
		}
	}
	return -1, errors.Errorf("tokens: %q is not a design token", string(aa))
}

// OneHot encodes a residue string as a (len(seq), Count) one-hot matrix.
func OneHot(seq string) (*tensor.Dense, error) {
	if len(seq) == 0 {
		return nil, errors.New("tokens: cannot encode an empty sequence")
	}
	backing := make([]float32, len(seq)*Count)
	for i := 0; i < len(seq); i++ {
		idx, err := Index(seq[i])
		if err != nil {
			return nil, errors.Wrapf(err, "position %d", i)
		}
		backing[i*Count+idx] = 1
	}
	return tensor.New(tensor.WithShape(len(seq), Count), tensor.WithBacking(backing)), nil
}

// Uniform returns a (n, Count) soft sequence with every row the uniform
// distribution. Useful as a design starting point.
func Uniform(n int) *tensor.Dense {
	backing := make([]float32, n*Count)
	for i := range backing {
		backing[i] = 1 / float32(Count)
	}
	return tensor.New(tensor.WithShape(n, Count), tensor.WithBacking(backing))
}

// Normalize rescales each row of a soft sequence in place so it sums to 1.
func Normalize(seq *tensor.Dense) error {
	if err := CheckShape(seq); err != nil {
		return err
	}
	data := seq.Data().([]float32)
	n := seq.Shape()[0]
	for i := 0; i < n; i++ {
		row := data[i*Count : (i+1)*Count]
		var sum float32
		for _, v := range row {
			sum += v
		}
		if sum <= 0 {
			return errors.Errorf("tokens: row %d sums to %v, cannot normalize", i, sum)
		}
		vecf32.Scale(row, 1/sum)
	}
	return nil
}

// CheckShape verifies that seq is a (N, Count) matrix.
func CheckShape(seq *tensor.Dense) error {
	shp := seq.Shape()
	if len(shp) != 2 || shp[1] != Count {
		return errors.Errorf("tokens: expected a (N, %d) soft sequence, got %v", Count, shp)
	}
	return nil
}

// CheckSoft verifies shape and that every row is close to a probability
// distribution.
func CheckSoft(seq *tensor.Dense) error {
	if err := CheckShape(seq); err != nil {
		return err
	}
	data := seq.Data().([]float32)
	n := seq.Shape()[0]
	for i := 0; i < n; i++ {
		var sum float32
		for _, v := range data[i*Count : (i+1)*Count] {
			if v < 0 {
				return errors.Errorf("tokens: row %d has a negative entry", i)
			}
			sum += v
		}
		if math32.Abs(sum-1) > sumTol {
			return errors.Errorf("tokens: row %d sums to %v, want 1", i, sum)
		}
	}
	return nil
}

// Decode returns the residue string of the argmax of each row. The inverse of
// OneHot on one-hot input.
func Decode(seq *tensor.Dense) (string, error) {
	if err := CheckShape(seq); err != nil {
		return "", err
	}
	data := seq.Data().([]float32)
	n := seq.Shape()[0]
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		best, bestV := 0, float32(math32.Inf(-1))
		for j := 0; j < Count; j++ {
			if v := data[i*Count+j]; v > bestV {
				best, bestV = j, v
			}
		}
		out[i] = Tokens[best]
	}
	return string(out), nil
}
