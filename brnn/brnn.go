// Package brnn implements a bidirectional, optionally stacked recurrent
// network over dense float32 tensors. Sequences are batch-major: inputs are
// shaped (batch, seq, features) and outputs (batch, seq, 2*hidden), the
// doubled feature dimension being the concatenation of the forward and
// backward passes.
package brnn

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Cell selects the recurrent cell variant of a Network.
type Cell int

const (
	// RNN is the vanilla tanh recurrent cell.
	RNN Cell = iota
	// GRU is the gated recurrent unit.
	GRU
	// LSTM is the long short-term memory cell. It is the only variant that
	// carries a cell state next to the hidden state.
	LSTM
)

func (c Cell) String() string {
	switch c {
	case RNN:
		return "RNN"
	case GRU:
		return "GRU"
	case LSTM:
		return "LSTM"
	}
	return "Cell(?)"
}

// gates is the number of gate blocks each weight matrix carries per cell step.
func (c Cell) gates() int {
	switch c {
	case RNN:
		return 1
	case GRU:
		return 3
	case LSTM:
		return 4
	}
	return 0
}

func (c Cell) valid() bool { return c >= RNN && c <= LSTM }

// ParseCell resolves a cell variant by name ("RNN", "GRU" or "LSTM",
// case-insensitive). Unknown names are an error, not a fallback.
func ParseCell(name string) (Cell, error) {
	switch strings.ToUpper(name) {
	case "RNN":
		return RNN, nil
	case "GRU":
		return GRU, nil
	case "LSTM":
		return LSTM, nil
	}
	return Cell(-1), errors.Errorf("brnn: unknown cell variant %q", name)
}

const (
	forward = iota
	backward
	numDirections
)

// params holds the learnable parameters of one stacked layer in one direction.
type params struct {
	wih *tensor.Dense // input projection, (in, gates*hidden)
	whh *tensor.Dense // recurrent projection, (hidden, gates*hidden)
	bih *tensor.Dense // (gates*hidden), nil when bias is disabled
	bhh *tensor.Dense // (gates*hidden), nil when bias is disabled
}

// Network is a bidirectional stacked recurrent network. Each stacked layer
// runs one forward and one backward pass with independent weights; layers
// past the first consume the 2*hidden concatenated output of the previous
// one. A Network holds no per-sequence state: Forward is a pure function of
// its inputs and the current weights, so concurrent forward passes are safe
// as long as the weights are not being mutated.
type Network struct {
	cell       Cell
	inputSize  int
	hiddenSize int
	numLayers  int
	bias       bool

	layers [][numDirections]params
	drop   *dropper
	train  bool
}

// New constructs a bidirectional network of numLayers stacked layers.
// Dropout, when non-zero, is applied between stacked layers while the
// network is in training mode. All parameters start at the torch-style
// default init, uniform(-1/√hidden, 1/√hidden).
func New(cell Cell, inputSize, hiddenSize, numLayers int, bias bool, dropout float64) (*Network, error) {
	if !cell.valid() {
		return nil, errors.Errorf("brnn: unknown cell variant %d", cell)
	}
	if inputSize < 1 || hiddenSize < 1 || numLayers < 1 {
		return nil, errors.Errorf("brnn: invalid dimensions (input %d, hidden %d, layers %d)", inputSize, hiddenSize, numLayers)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, errors.Errorf("brnn: dropout %v outside [0, 1)", dropout)
	}

	n := &Network{
		cell:       cell,
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		numLayers:  numLayers,
		bias:       bias,
		layers:     make([][numDirections]params, numLayers),
	}

	k := 1 / math.Sqrt(float64(hiddenSize))
	gh := cell.gates() * hiddenSize
	in := inputSize
	for l := range n.layers {
		for d := 0; d < numDirections; d++ {
			p := &n.layers[l][d]
			p.wih = uniformDense(-k, k, in, gh)
			p.whh = uniformDense(-k, k, hiddenSize, gh)
			if bias {
				p.bih = uniformDense(-k, k, gh)
				p.bhh = uniformDense(-k, k, gh)
			}
		}
		in = 2 * hiddenSize
	}
	if dropout > 0 {
		n.drop = newDropper(dropout)
	}
	return n, nil
}

func uniformDense(lo, hi float64, shape ...int) *tensor.Dense {
	backing := G.Uniform(lo, hi)(tensor.Float32, shape...)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

// Cell reports the cell variant the network was built with.
func (n *Network) Cell() Cell { return n.cell }

// InputSize reports the per-step input feature dimension.
func (n *Network) InputSize() int { return n.inputSize }

// HiddenSize reports the hidden units per direction.
func (n *Network) HiddenSize() int { return n.hiddenSize }

// NumLayers reports the number of stacked layers.
func (n *Network) NumLayers() int { return n.numLayers }

// SetTraining enables dropout between stacked layers.
func (n *Network) SetTraining() { n.train = true }

// SetTesting disables dropout; forward passes become deterministic.
// This is the constructed default.
func (n *Network) SetTesting() { n.train = false }

// WeightMatrices returns every weight matrix of the network — the input and
// recurrent projections of each stacked layer in each direction — excluding
// bias vectors. The matrices are the live tensors, not copies; overwriting
// their data re-parameterizes the network.
func (n *Network) WeightMatrices() []*tensor.Dense {
	mats := make([]*tensor.Dense, 0, len(n.layers)*numDirections*2)
	for l := range n.layers {
		for d := range n.layers[l] {
			mats = append(mats, n.layers[l][d].wih, n.layers[l][d].whh)
		}
	}
	return mats
}

// Biases returns every bias vector across layers and directions, or nil when
// the network was built without biases. Like WeightMatrices, the returned
// tensors are live.
func (n *Network) Biases() []*tensor.Dense {
	if !n.bias {
		return nil
	}
	bs := make([]*tensor.Dense, 0, len(n.layers)*numDirections*2)
	for l := range n.layers {
		for d := range n.layers[l] {
			bs = append(bs, n.layers[l][d].bih, n.layers[l][d].bhh)
		}
	}
	return bs
}

// Forward runs the network over x, shaped (batch, seq, features). A nil s0 is
// equivalent to ZeroState(batch). It returns the per-step outputs shaped
// (batch, seq, 2*hidden) and the final state.
func (n *Network) Forward(x *tensor.Dense, s0 *State) (*tensor.Dense, *State, error) {
	shp := x.Shape()
	if len(shp) != 3 {
		return nil, nil, errors.Errorf("brnn: want a 3-D (batch, seq, features) input, got shape %v", shp)
	}
	batch, seqLen, feat := shp[0], shp[1], shp[2]
	if feat != n.inputSize {
		return nil, nil, errors.Errorf("brnn: input has %d features, network expects %d", feat, n.inputSize)
	}
	if s0 == nil {
		s0 = n.ZeroState(batch)
	}
	if err := n.checkState(s0, batch); err != nil {
		return nil, nil, err
	}

	H := n.hiddenSize
	h0 := denseData(s0.Hidden)
	var c0 []float32
	if n.cell == LSTM {
		c0 = denseData(s0.Cell)
	}
	hFinal := make([]float32, numDirections*n.numLayers*batch*H)
	var cFinal []float32
	if n.cell == LSTM {
		cFinal = make([]float32, len(hFinal))
	}

	// The whole pass runs time-major so that each timestep is a contiguous
	// (batch, features) block.
	cur := timeMajor(denseData(x), batch, seqLen, feat)
	in := n.inputSize
	for l := range n.layers {
		out := make([]float32, seqLen*batch*2*H)
		for d := 0; d < numDirections; d++ {
			if err := n.runDirection(&n.layers[l][d], cur, out, h0, c0, hFinal, cFinal, l, d, batch, seqLen, in); err != nil {
				return nil, nil, err
			}
		}
		if l < n.numLayers-1 && n.train && n.drop != nil {
			n.drop.apply(out)
		}
		cur = out
		in = 2 * H
	}

	outT := tensor.New(
		tensor.WithShape(batch, seqLen, 2*H),
		tensor.WithBacking(batchMajor(cur, batch, seqLen, 2*H)),
	)
	sn := &State{Hidden: tensor.New(tensor.WithShape(numDirections*n.numLayers, batch, H), tensor.WithBacking(hFinal))}
	if n.cell == LSTM {
		sn.Cell = tensor.New(tensor.WithShape(numDirections*n.numLayers, batch, H), tensor.WithBacking(cFinal))
	}
	return outT, sn, nil
}

func denseData(t *tensor.Dense) []float32 {
	return t.Materialize().(*tensor.Dense).Data().([]float32)
}

// timeMajor reorders a flat (batch, seq, feat) buffer into (seq, batch, feat).
func timeMajor(a []float32, batch, seqLen, feat int) []float32 {
	out := make([]float32, batch*seqLen*feat)
	for b := 0; b < batch; b++ {
		for t := 0; t < seqLen; t++ {
			src := (b*seqLen + t) * feat
			copy(out[(t*batch+b)*feat:], a[src:src+feat])
		}
	}
	return out
}

// batchMajor is the inverse of timeMajor.
func batchMajor(a []float32, batch, seqLen, feat int) []float32 {
	out := make([]float32, batch*seqLen*feat)
	for t := 0; t < seqLen; t++ {
		for b := 0; b < batch; b++ {
			src := (t*batch + b) * feat
			copy(out[(b*seqLen+t)*feat:], a[src:src+feat])
		}
	}
	return out
}
