package renet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"

	"github.com/LuckyOwl95/defusernn-models/brnn"
)

func randImage(b, c, h, w int) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(b, c, h, w),
		tensor.WithBacking(tensor.Random(tensor.Float32, b*c*h*w)),
	)
}

func TestShapeLaw(t *testing.T) {
	assert := assert.New(t)
	cases := []struct {
		b, c, h, w, window, hidden int
		stack                      [2]int
		cell                       brnn.Cell
	}{
		{4, 3, 32, 32, 2, 50, [2]int{1, 1}, brnn.GRU}, // the paper's CIFAR geometry, small batch
		{2, 1, 8, 12, 4, 5, [2]int{1, 1}, brnn.RNN},
		{1, 3, 12, 8, 2, 7, [2]int{2, 1}, brnn.LSTM},
		{3, 2, 6, 6, 3, 4, [2]int{1, 2}, brnn.GRU},
	}
	for _, tc := range cases {
		conf := DefaultConf(tc.window, tc.hidden, tc.cell)
		conf.ChannelSize = tc.c
		conf.StackSize = tc.stack
		l, err := New(conf)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		out, err := l.Forward(randImage(tc.b, tc.c, tc.h, tc.w))
		if err != nil {
			t.Fatalf("%+v", err)
		}
		want := tensor.Shape{tc.b, 2 * tc.hidden, tc.h / tc.window, tc.w / tc.window}
		assert.True(out.Shape().Eq(want), "case %+v: got %v, want %v", tc, out.Shape(), want)
	}
}

func TestDivisibilityPrecondition(t *testing.T) {
	l, err := New(DefaultConf(2, 5, brnn.RNN))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := l.Forward(randImage(1, 3, 33, 32)); err == nil {
		t.Fatal("expected an error for a height not divisible by the window")
	}
	if _, err := l.Forward(randImage(1, 3, 32, 31)); err == nil {
		t.Fatal("expected an error for a width not divisible by the window")
	}
}

func TestInputContract(t *testing.T) {
	l, err := New(DefaultConf(2, 5, brnn.RNN))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := l.Forward(randImage(1, 4, 8, 8)); err == nil {
		t.Fatal("expected an error for a channel mismatch")
	}
	flat := tensor.New(tensor.WithShape(3, 8, 8), tensor.WithBacking(tensor.Random(tensor.Float32, 192)))
	if _, err := l.Forward(flat); err == nil {
		t.Fatal("expected an error for a 3-D input")
	}
}

func TestInvalidConfig(t *testing.T) {
	conf := DefaultConf(0, 5, brnn.RNN)
	if _, err := New(conf); err == nil {
		t.Fatal("expected an error for a zero window size")
	}
	conf = DefaultConf(2, 5, brnn.RNN)
	conf.Dropout = 1
	if _, err := New(conf); err == nil {
		t.Fatal("expected an error for dropout = 1")
	}
	conf = DefaultConf(2, 5, brnn.Cell(42))
	if _, err := New(conf); err == nil {
		t.Fatal("expected an error for an unknown cell variant")
	}
}

func TestDeterminism(t *testing.T) {
	l, err := New(DefaultConf(2, 6, brnn.LSTM))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	x := randImage(2, 3, 8, 8)
	a, err := l.Forward(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := l.Forward(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, a.Data(), b.Data())
}

func TestVariantCoverage(t *testing.T) {
	assert := assert.New(t)
	for _, cell := range []brnn.Cell{brnn.RNN, brnn.GRU, brnn.LSTM} {
		l, err := New(DefaultConf(2, 4, cell))
		if err != nil {
			t.Fatalf("%v: %+v", cell, err)
		}
		out, err := l.Forward(randImage(1, 3, 6, 6))
		if err != nil {
			t.Fatalf("%v: %+v", cell, err)
		}
		assert.True(out.Shape().Eq(tensor.Shape{1, 8, 3, 3}))

		vert, _ := l.Sweeps()
		s := vert.ZeroState(2)
		if cell == brnn.LSTM {
			assert.NotNil(s.Cell, "LSTM hidden state must be paired with a cell state")
		} else {
			assert.Nil(s.Cell)
		}
	}
}

func TestStackingStateDims(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConf(2, 5, brnn.GRU)
	conf.StackSize = [2]int{2, 3}
	l, err := New(conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vert, horiz := l.Sweeps()
	assert.True(vert.ZeroState(7).Hidden.Shape().Eq(tensor.Shape{4, 7, 5}))
	assert.True(horiz.ZeroState(7).Hidden.Shape().Eq(tensor.Shape{6, 7, 5}))

	out, err := l.Forward(randImage(2, 3, 8, 8))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(out.Shape().Eq(tensor.Shape{2, 10, 4, 4}))
}

func TestBidirectionalSensitivity(t *testing.T) {
	conf := DefaultConf(1, 4, brnn.RNN)
	conf.ChannelSize = 1
	l, err := New(conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	const h, w, col = 6, 3, 1
	x1 := randImage(1, 1, h, w)
	x2 := x1.Clone().(*tensor.Dense)
	d := x2.Data().([]float32)
	d[0*w+col] += 5 // top of the vertical axis, fixed column

	a, err := l.Forward(x1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := l.Forward(x2)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// output (1, 8, h, w): read the opposite (bottom) end of the same column
	bottom := func(out *tensor.Dense) []float32 {
		data := out.Data().([]float32)
		vals := make([]float32, 8)
		for ch := 0; ch < 8; ch++ {
			vals[ch] = data[(ch*h+(h-1))*w+col]
		}
		return vals
	}
	assert.NotEqual(t, bottom(a), bottom(b),
		"a change at one end of the swept axis must reach the other end")
}

func TestConcurrentForward(t *testing.T) {
	l, err := New(DefaultConf(2, 4, brnn.GRU))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	x := randImage(1, 3, 8, 8)
	ref, err := l.Forward(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	var wg sync.WaitGroup
	outs := make([]*tensor.Dense, 4)
	errs := make([]error, 4)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = l.Forward(x)
		}(i)
	}
	wg.Wait()
	for i := range outs {
		if errs[i] != nil {
			t.Fatalf("%+v", errs[i])
		}
		assert.Equal(t, ref.Data(), outs[i].Data())
	}
}
