package brnn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// runDirection sweeps one direction of one stacked layer over the time-major
// input buffer in, shaped (seq, batch, inSize), writing its per-step hidden
// states into its half of the (seq, batch, 2*hidden) output buffer and its
// final state into hFinal/cFinal at the (layer, dir) block.
func (n *Network) runDirection(p *params, in, out, h0, c0, hFinal, cFinal []float32, layer, dir, batch, seqLen, inSize int) error {
	H := n.hiddenSize
	gh := n.cell.gates() * H

	// Project the whole sequence through the input weights in one matmul.
	xmat := tensor.New(tensor.WithShape(seqLen*batch, inSize), tensor.WithBacking(in))
	proj, err := tensor.MatMul(xmat, p.wih)
	if err != nil {
		return errors.Wrapf(err, "brnn: input projection, layer %d dir %d", layer, dir)
	}
	gx := proj.Data().([]float32)
	if n.bias {
		bih := p.bih.Data().([]float32)
		for r := 0; r < seqLen*batch; r++ {
			vecf32.Add(gx[r*gh:(r+1)*gh], bih)
		}
	}

	blk := (numDirections*layer + dir) * batch * H
	h := make([]float32, batch*H)
	copy(h, h0[blk:blk+batch*H])
	var c []float32
	if n.cell == LSTM {
		c = make([]float32, batch*H)
		copy(c, c0[blk:blk+batch*H])
	}
	var bhh []float32
	if n.bias {
		bhh = p.bhh.Data().([]float32)
	}

	for i := 0; i < seqLen; i++ {
		t := i
		if dir == backward {
			t = seqLen - 1 - i
		}

		hmat := tensor.New(tensor.WithShape(batch, H), tensor.WithBacking(h))
		rec, err := tensor.MatMul(hmat, p.whh)
		if err != nil {
			return errors.Wrapf(err, "brnn: recurrent projection, layer %d dir %d step %d", layer, dir, t)
		}
		ghs := rec.Data().([]float32)
		if n.bias {
			for b := 0; b < batch; b++ {
				vecf32.Add(ghs[b*gh:(b+1)*gh], bhh)
			}
		}

		step := gx[t*batch*gh : (t+1)*batch*gh]
		n.stepCell(step, ghs, h, c, batch)

		for b := 0; b < batch; b++ {
			dst := (t*batch+b)*2*H + dir*H
			copy(out[dst:dst+H], h[b*H:(b+1)*H])
		}
	}

	copy(hFinal[blk:blk+batch*H], h)
	if n.cell == LSTM {
		copy(cFinal[blk:blk+batch*H], c)
	}
	return nil
}

// stepCell advances h (and c, for LSTM) by one timestep in place. gx holds
// the biased input-side gate pre-activations for this step, ghs the biased
// recurrent-side ones, both shaped (batch, gates*hidden).
func (n *Network) stepCell(gx, ghs, h, c []float32, batch int) {
	H := n.hiddenSize
	switch n.cell {
	case RNN:
		vecf32.Add(gx, ghs)
		for j, v := range gx {
			h[j] = math32.Tanh(v)
		}
	case GRU:
		// gate order: reset, update, candidate. The candidate's recurrent
		// part is gated by reset before the tanh, torch-style.
		for b := 0; b < batch; b++ {
			xo := b * 3 * H
			xr, xz, xn := gx[xo:xo+H], gx[xo+H:xo+2*H], gx[xo+2*H:xo+3*H]
			hr, hz, hn := ghs[xo:xo+H], ghs[xo+H:xo+2*H], ghs[xo+2*H:xo+3*H]
			hrow := h[b*H : (b+1)*H]
			for j := 0; j < H; j++ {
				r := sigmoid(xr[j] + hr[j])
				z := sigmoid(xz[j] + hz[j])
				cand := math32.Tanh(xn[j] + r*hn[j])
				hrow[j] = (1-z)*cand + z*hrow[j]
			}
		}
	case LSTM:
		// gate order: input, forget, cell, output.
		vecf32.Add(gx, ghs)
		for b := 0; b < batch; b++ {
			xo := b * 4 * H
			it, ft, gt, ot := gx[xo:xo+H], gx[xo+H:xo+2*H], gx[xo+2*H:xo+3*H], gx[xo+3*H:xo+4*H]
			hrow, crow := h[b*H:(b+1)*H], c[b*H:(b+1)*H]
			for j := 0; j < H; j++ {
				crow[j] = sigmoid(ft[j])*crow[j] + sigmoid(it[j])*math32.Tanh(gt[j])
				hrow[j] = sigmoid(ot[j]) * math32.Tanh(crow[j])
			}
		}
	}
}

func sigmoid(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }
