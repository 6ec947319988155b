package renet

import "github.com/LuckyOwl95/defusernn-models/brnn"

// Config configures a single ReNet layer.
type Config struct {
	WindowSize int       // square patch edge, in pixels
	HiddenDim  int       // hidden units per direction per sweep
	Cell       brnn.Cell // recurrent cell variant used by both sweeps

	StackSize   [2]int  // stacked recurrent layers for the (vertical, horizontal) sweep
	ChannelSize int     // input channels
	Bias        bool    // whether the sweeps carry bias vectors
	Dropout     float64 // inter-layer dropout within each sweep, training mode only
}

// DefaultConf returns a single-stack RGB configuration with biases enabled.
func DefaultConf(windowSize, hiddenDim int, cell brnn.Cell) Config {
	return Config{
		WindowSize:  windowSize,
		HiddenDim:   hiddenDim,
		Cell:        cell,
		StackSize:   [2]int{1, 1},
		ChannelSize: 3,
		Bias:        true,
	}
}

func (conf Config) IsValid() bool {
	return conf.WindowSize >= 1 &&
		conf.HiddenDim >= 1 &&
		conf.StackSize[0] >= 1 &&
		conf.StackSize[1] >= 1 &&
		conf.ChannelSize >= 1 &&
		conf.Dropout >= 0 && conf.Dropout < 1
}
