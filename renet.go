// Package renet implements a single ReNet layer: convolution-free feature
// extraction that divides an image batch into non-overlapping patches and
// sweeps two independently-weighted bidirectional recurrent networks over
// the patch grid, first along the vertical axis and then the horizontal one.
// The output of a layer is a feature map with reduced spatial resolution and
// 2*HiddenDim channels, suitable as input to another layer or a classifier
// head.
package renet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/LuckyOwl95/defusernn-models/brnn"
)

// Layer is a single ReNet layer. It is constructed once with fixed
// hyperparameters and holds no per-forward state: given fixed weights,
// Forward is a pure function, and concurrent forward passes are safe as long
// as no collaborator is mutating the weights.
type Layer struct {
	conf Config

	// Window height and width are plumbed separately even though the public
	// contract is a square window.
	windowH, windowW int

	vertical   *brnn.Network // first sweep, along the patch-row axis
	horizontal *brnn.Network // second sweep, along the patch-column axis
}

// New constructs a ReNet layer. The vertical sweep projects flattened
// window²*channels patch vectors; the horizontal sweep consumes the vertical
// sweep's 2*HiddenDim output. Both sweeps are Xavier-initialized (weight
// matrices only, biases keep their default init).
func New(conf Config) (*Layer, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("renet: invalid config %+v", conf)
	}
	l := &Layer{
		conf:    conf,
		windowH: conf.WindowSize,
		windowW: conf.WindowSize,
	}

	var err error
	patchFeat := l.windowH * l.windowW * conf.ChannelSize
	if l.vertical, err = brnn.New(conf.Cell, patchFeat, conf.HiddenDim, conf.StackSize[0], conf.Bias, conf.Dropout); err != nil {
		return nil, errors.Wrap(err, "renet: vertical sweep")
	}
	if l.horizontal, err = brnn.New(conf.Cell, 2*conf.HiddenDim, conf.HiddenDim, conf.StackSize[1], conf.Bias, conf.Dropout); err != nil {
		return nil, errors.Wrap(err, "renet: horizontal sweep")
	}
	l.initWeights()
	return l, nil
}

// Conf returns the layer's configuration.
func (l *Layer) Conf() Config { return l.conf }

// Sweeps returns the two bidirectional networks, vertical first. They are
// live: a training collaborator updates the layer through them.
func (l *Layer) Sweeps() (vertical, horizontal *brnn.Network) {
	return l.vertical, l.horizontal
}

// SetTraining enables inter-layer dropout in both sweeps.
func (l *Layer) SetTraining() {
	l.vertical.SetTraining()
	l.horizontal.SetTraining()
}

// SetTesting disables dropout in both sweeps. This is the constructed
// default; testing-mode forward passes are deterministic.
func (l *Layer) SetTesting() {
	l.vertical.SetTesting()
	l.horizontal.SetTesting()
}

// Forward applies the layer to x, shaped (batch, channels, height, width),
// and returns the feature map shaped (batch, 2*HiddenDim, height/window,
// width/window).
//
// With a 128×3×32×32 input, window size 2 and 50 hidden units, the output is
// shaped 128×100×16×16.
func (l *Layer) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	patches, err := l.ExtractPatches(x) // (b, f, h', w')
	if err != nil {
		return nil, err
	}

	var r reorder
	t := r.permute(patches, "(b,f,h',w')→(h',b,w',f)", 2, 0, 3, 1)
	if r.err != nil {
		return nil, r.err
	}
	if t, err = l.sweep(t, l.vertical); err != nil { // (h', b, w', 2d)
		return nil, errors.Wrap(err, "renet: vertical sweep")
	}
	t = r.permute(t, "(h',b,w',2d)→(w',b,h',2d)", 2, 1, 0, 3)
	if r.err != nil {
		return nil, r.err
	}
	if t, err = l.sweep(t, l.horizontal); err != nil { // (w', b, h', 2d)
		return nil, errors.Wrap(err, "renet: horizontal sweep")
	}
	t = r.permute(t, "(w',b,h',2d)→(b,2d,h',w')", 1, 3, 2, 0)
	return t, r.err
}

// sweep runs one bidirectional recurrent pass along the leading axis of t,
// shaped (sweep, batch, other, features). The other axis is folded into the
// batch so each of its positions is an independent sequence, started from a
// zero state sized (2*stack, batch*other, hidden). Output is shaped
// (sweep, batch, other, 2*HiddenDim).
func (l *Layer) sweep(t *tensor.Dense, nw *brnn.Network) (*tensor.Dense, error) {
	shp := t.Shape()
	s, b, o, f := shp[0], shp[1], shp[2], shp[3]

	var r reorder
	seq := r.permute(t, "(s,b,o,f)→(b,o,s,f)", 1, 2, 0, 3)
	seq = r.reshape(seq, "(b,o,s,f)→(b·o,s,f)", b*o, s, f)
	if r.err != nil {
		return nil, r.err
	}

	out, _, err := nw.Forward(seq, nw.ZeroState(b*o))
	if err != nil {
		return nil, err
	}

	res := r.reshape(out, "(b·o,s,2d)→(b,o,s,2d)", b, o, s, 2*l.conf.HiddenDim)
	res = r.permute(res, "(b,o,s,2d)→(s,b,o,2d)", 2, 0, 1, 3)
	return res, r.err
}
