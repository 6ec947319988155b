package renet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// reorder sequences the pure data-layout transforms of the forward pipeline.
// The first failure poisons the sequence; every later step is a no-op and the
// error surfaces once at the end. Each step is annotated with its axis
// pattern so shape failures name the transform that broke.
type reorder struct {
	err error
}

// permute returns a materialized copy of t with its axes reordered; output
// axis i is input axis axes[i]. t itself is left untouched.
func (r *reorder) permute(t *tensor.Dense, pattern string, axes ...int) *tensor.Dense {
	if r.err != nil {
		return nil
	}
	c := t.Clone().(*tensor.Dense)
	if r.err = c.T(axes...); r.err != nil {
		r.err = errors.Wrapf(r.err, "permute %s", pattern)
		return nil
	}
	return c.Materialize().(*tensor.Dense)
}

// reshape relabels the dimensions of t in place. It is only applied to
// tensors the pipeline owns (clones and materialized permutes).
func (r *reorder) reshape(t *tensor.Dense, pattern string, dims ...int) *tensor.Dense {
	if r.err != nil {
		return nil
	}
	if r.err = t.Reshape(dims...); r.err != nil {
		r.err = errors.Wrapf(r.err, "reshape %s", pattern)
		return nil
	}
	return t
}

// ExtractPatches slices x, shaped (batch, channels, height, width), into
// non-overlapping WindowSize×WindowSize patches and flattens each patch into
// a feature vector, channel outermost and patch column innermost. The result
// is shaped (batch, window²*channels, height/window, width/window).
//
// Height and width must be exact multiples of the window edge; the layer
// neither pads nor crops.
func (l *Layer) ExtractPatches(x *tensor.Dense) (*tensor.Dense, error) {
	shp := x.Shape()
	if len(shp) != 4 {
		return nil, errors.Errorf("renet: want a 4-D (batch, channels, height, width) input, got shape %v", shp)
	}
	b, c, h, w := shp[0], shp[1], shp[2], shp[3]
	if c != l.conf.ChannelSize {
		return nil, errors.Errorf("renet: input has %d channels, layer expects %d", c, l.conf.ChannelSize)
	}
	if h%l.windowH != 0 || w%l.windowW != 0 {
		return nil, errors.Errorf("renet: input %d×%d not divisible by %d×%d window", h, w, l.windowH, l.windowW)
	}
	ph, pw := h/l.windowH, w/l.windowW
	feat := l.windowH * l.windowW * c

	var r reorder
	t := r.reshape(x.Clone().(*tensor.Dense), "(b,c,h,w)→(b,c,h',wh,w',ww)", b, c, ph, l.windowH, pw, l.windowW)
	t = r.permute(t, "(b,c,h',wh,w',ww)→(b,h',w',c,wh,ww)", 0, 2, 4, 1, 3, 5)
	t = r.reshape(t, "(b,h',w',c,wh,ww)→(b,h',w',f)", b, ph, pw, feat)
	t = r.permute(t, "(b,h',w',f)→(b,f,h',w')", 0, 3, 1, 2)
	return t, r.err
}
