package brnn

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// State carries the recurrent activations of a Network: one hidden block per
// stacked layer and direction, and a matching cell-state block for LSTM
// networks.
type State struct {
	Hidden *tensor.Dense // (2*layers, batch, hidden)
	Cell   *tensor.Dense // LSTM only; nil for RNN and GRU networks
}

// ZeroState returns the all-zero initial state for the given batch size,
// shaped (2*layers, batch, hidden). Only LSTM networks get a cell-state
// tensor; the others leave State.Cell nil.
func (n *Network) ZeroState(batch int) *State {
	shape := tensor.Shape{numDirections * n.numLayers, batch, n.hiddenSize}
	s := &State{Hidden: tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...))}
	if n.cell == LSTM {
		s.Cell = tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...))
	}
	return s
}

func (n *Network) checkState(s *State, batch int) error {
	want := tensor.Shape{numDirections * n.numLayers, batch, n.hiddenSize}
	if s.Hidden == nil || !s.Hidden.Shape().Eq(want) {
		return errors.Errorf("brnn: initial hidden state must be shaped %v", want)
	}
	if n.cell == LSTM {
		if s.Cell == nil || !s.Cell.Shape().Eq(want) {
			return errors.Errorf("brnn: LSTM initial cell state must be shaped %v", want)
		}
	} else if s.Cell != nil {
		return errors.Errorf("brnn: %v networks carry no cell state", n.cell)
	}
	return nil
}
