package renet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/LuckyOwl95/defusernn-models/brnn"
)

// initWeights overwrites every weight matrix of both sweeps with
// Xavier/Glorot uniform samples scaled to the matrix's fan-in and fan-out.
// Bias vectors are left at the networks' own default init. Rerunning it only
// resamples from the same distribution.
func (l *Layer) initWeights() {
	for _, nw := range []*brnn.Network{l.vertical, l.horizontal} {
		for _, w := range nw.WeightMatrices() {
			backing := G.GlorotU(1.0)(tensor.Float32, w.Shape()...)
			copy(w.Data().([]float32), backing.([]float32))
		}
	}
}
