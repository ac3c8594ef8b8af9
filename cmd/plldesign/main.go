// plldesign scores a random soft sequence under a randomly initialized
// ESM-2 style trunk and reports the pseudo-likelihood loss, its gradient
// norm and aux metrics. Handy for smoke testing the loss stack; it is not a
// design loop.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/chewxy/math32"

	design "github.com/hgbrian/boltz-binder-design"
	"github.com/hgbrian/boltz-binder-design/encoding/logo"
	"github.com/hgbrian/boltz-binder-design/esm"
	"github.com/hgbrian/boltz-binder-design/losses"
	"github.com/hgbrian/boltz-binder-design/tokens"
)

func main() {
	var (
		length   = flag.Int("len", 16, "sequence length")
		layers   = flag.Int("layers", 2, "trunk layers")
		heads    = flag.Int("heads", 2, "attention heads")
		dim      = flag.Int("dim", 32, "embedding width")
		ff       = flag.Int("ff", 64, "feed forward width")
		seed     = flag.Int64("seed", 1337, "weight seed")
		stopGrad = flag.Bool("stopgrad", false, "freeze the masked likelihood evaluation")
		gifPath  = flag.String("gif", "", "write a heatmap frame to this file")
	)
	flag.Parse()

	conf := esm.Config{
		VocabSize: esm.AlphabetSize,
		EmbedDim:  *dim,
		NumLayers: *layers,
		NumHeads:  *heads,
		FFDim:     *ff,
		Eps:       1e-5,
	}
	if !conf.IsValid() {
		log.Fatalf("invalid trunk config %+v", conf)
	}

	weights := esm.RandomWeights(conf, *seed)
	pll, err := losses.NewESM2PseudoLikelihood(weights, *stopGrad)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	seq := tokens.Uniform(*length)
	res, err := design.Evaluate(pll, seq)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	fmt.Printf("loss: %v\n", res.Loss)
	for k, v := range res.Aux {
		fmt.Printf("%s: %v\n", k, v)
	}
	var norm float32
	for _, g := range res.Grad.Data().([]float32) {
		norm += g * g
	}
	fmt.Printf("grad norm: %v\n", math32.Sqrt(norm))

	if *gifPath != "" {
		f, err := os.Create(*gifPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		enc := logo.NewGifEncoder(8)
		enc.Writer = f
		if err := enc.Encode(seq, fmt.Sprintf("loss %.4f", res.Loss)); err != nil {
			log.Fatalf("%+v", err)
		}
		if err := enc.Flush(); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}
