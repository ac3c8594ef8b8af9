package esm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func randInput(l, d int, seed int64) *tensor.Dense {
	return glorot(rand.New(rand.NewSource(seed)), l, d)
}

func TestBindWeightNodes(t *testing.T) {
	conf := TinyConf()
	w := RandomWeights(conf, 1)
	m, err := w.Bind(G.NewGraph())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// embedding + 16 per layer + final norm pair + head pair
	want := 1 + 16*conf.NumLayers + 2 + 2
	assert.Len(t, m.WeightNodes(), want)
}

func TestBindInvalidConfig(t *testing.T) {
	w := RandomWeights(TinyConf(), 1)
	w.Config.NumHeads = 3
	if _, err := w.Bind(G.NewGraph()); err == nil {
		t.Fatal("expected an error for an invalid config")
	}
}

func TestTrunkShapes(t *testing.T) {
	assert := assert.New(t)
	conf := TinyConf()
	w := RandomWeights(conf, 2)
	g := G.NewGraph()
	m, err := w.Bind(g)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	const l = 5
	x := G.NodeFromAny(g, randInput(l, conf.EmbedDim, 3), G.WithName("x"))
	h, err := m.Trunk(x, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	logits, err := m.Logits(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	var hv, lv G.Value
	G.Read(h, &hv)
	G.Read(logits, &lv)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}

	assert.Equal([]int{l, conf.EmbedDim}, []int(hv.Shape()))
	assert.Equal([]int{l, conf.VocabSize}, []int(lv.Shape()))
	for _, v := range lv.Data().([]float32) {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatal("trunk produced a non-finite logit")
		}
	}
}

func TestTrunkPadMask(t *testing.T) {
	conf := TinyConf()
	w := RandomWeights(conf, 2)
	g := G.NewGraph()
	m, err := w.Bind(g)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	const l = 4
	x := G.NodeFromAny(g, randInput(l, conf.EmbedDim, 4), G.WithName("x"))
	h, err := m.Trunk(x, []bool{false, false, false, true})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var hv G.Value
	G.Read(h, &hv)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []int{l, conf.EmbedDim}, []int(hv.Shape()))
}

func TestTrunkInputValidation(t *testing.T) {
	conf := TinyConf()
	w := RandomWeights(conf, 2)
	g := G.NewGraph()
	m, err := w.Bind(g)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	x := G.NodeFromAny(g, randInput(3, conf.EmbedDim+1, 5), G.WithName("bad"))
	if _, err := m.Trunk(x, nil); err == nil {
		t.Error("expected an error for a wrong width input")
	}
	ok := G.NodeFromAny(g, randInput(3, conf.EmbedDim, 5), G.WithName("ok"))
	if _, err := m.Trunk(ok, []bool{true}); err == nil {
		t.Error("expected an error for a wrong length pad mask")
	}
	if _, err := m.Logits(x); err == nil {
		t.Error("expected an error for a wrong width logit input")
	}
}

// At position zero all rotary angles are zero, so rotation is the identity.
func TestRotateAtOrigin(t *testing.T) {
	g := G.NewGraph()
	in := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float32{1, 2, 3, 4}))
	x := G.NodeFromAny(g, in, G.WithName("x"))
	rope := newRopeTables(1, 4)

	var b graphb
	y := rotate(&b, x, rope)
	if b.err != nil {
		t.Fatalf("%+v", b.err)
	}
	var yv G.Value
	G.Read(y, &yv)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDeltaSlice(t, []float32{1, 2, 3, 4}, yv.Data().([]float32), 1e-6)
}

// x @ rot must be concat(-x2, x1) over the half split.
func TestRotationMatrix(t *testing.T) {
	g := G.NewGraph()
	in := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float32{1, 2, 3, 4}))
	x := G.NodeFromAny(g, in, G.WithName("x"))
	rope := newRopeTables(2, 4)

	y, err := G.Mul(x, rope.rot)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var yv G.Value
	G.Read(y, &yv)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDeltaSlice(t, []float32{-3, -4, 1, 2}, yv.Data().([]float32), 1e-6)
}

// With unit gamma and zero beta, layer norm rows come out zero mean, unit
// variance.
func TestLayerNorm(t *testing.T) {
	g := G.NewGraph()
	in := tensor.New(tensor.WithShape(2, 4), tensor.WithBacking([]float32{
		1, 2, 3, 4,
		-2, 0, 2, 8,
	}))
	x := G.NodeFromAny(g, in, G.WithName("x"))
	nw := boundNorm{
		gamma: G.NodeFromAny(g, onesNorm(4).Gamma, G.WithName("g")),
		beta:  G.NodeFromAny(g, onesNorm(4).Beta, G.WithName("b")),
	}

	var b graphb
	y := layerNorm(&b, x, nw, 1e-6)
	if b.err != nil {
		t.Fatalf("%+v", b.err)
	}
	var yv G.Value
	G.Read(y, &yv)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}

	out := yv.Data().([]float32)
	for r := 0; r < 2; r++ {
		var mean, variance float64
		for c := 0; c < 4; c++ {
			mean += float64(out[r*4+c])
		}
		mean /= 4
		for c := 0; c < 4; c++ {
			d := float64(out[r*4+c]) - mean
			variance += d * d
		}
		variance /= 4
		assert.InDelta(t, 0, mean, 1e-5, "row %d mean", r)
		assert.InDelta(t, 1, variance, 1e-3, "row %d variance", r)
	}
}
