package brnn

import (
	"time"

	rng "github.com/leesper/go_rng"
)

// dropper zeroes activations with probability p and rescales survivors by
// 1/(1-p), so testing-mode activations need no compensation.
type dropper struct {
	p   float64
	rng *rng.UniformGenerator
}

func newDropper(p float64) *dropper {
	return &dropper{p: p, rng: rng.NewUniformGenerator(time.Now().UnixNano())}
}

func (d *dropper) apply(a []float32) {
	scale := float32(1 / (1 - d.p))
	for i := range a {
		if d.rng.Float64() < d.p {
			a[i] = 0
		} else {
			a[i] *= scale
		}
	}
}
