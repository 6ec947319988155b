package renet

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the layer's fixed pipeline as a graphviz digraph for the
// given input geometry, one node per stage with its output shape. Handy for
// auditing the four axis permutations without running a forward pass.
func (l *Layer) ToDot(batch, height, width int) string {
	g := gographviz.NewGraph()
	if err := g.SetName("ReNet"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	ph, pw := height/l.windowH, width/l.windowW
	feat := l.windowH * l.windowW * l.conf.ChannelSize
	depth := 2 * l.conf.HiddenDim

	stages := []struct {
		name, label string
		shape       [4]int
	}{
		{"input", "input", [4]int{batch, l.conf.ChannelSize, height, width}},
		{"patches", "extract patches", [4]int{batch, feat, ph, pw}},
		{"vlead", "permute, vertical axis leading", [4]int{ph, batch, pw, feat}},
		{"vsweep", fmt.Sprintf("vertical sweep (%v ×%d)", l.conf.Cell, l.conf.StackSize[0]), [4]int{ph, batch, pw, depth}},
		{"hlead", "permute, horizontal axis leading", [4]int{pw, batch, ph, depth}},
		{"hsweep", fmt.Sprintf("horizontal sweep (%v ×%d)", l.conf.Cell, l.conf.StackSize[1]), [4]int{pw, batch, ph, depth}},
		{"output", "restore axis order", [4]int{batch, depth, ph, pw}},
	}

	for _, s := range stages {
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "box",
			"label":    fmt.Sprintf("\"%s\\n%v\"", s.label, s.shape),
		}
		if err := g.AddNode("ReNet", s.name, attrs); err != nil {
			panic(err)
		}
	}
	for i := 1; i < len(stages); i++ {
		if err := g.AddEdge(stages[i-1].name, stages[i].name, true, nil); err != nil {
			panic(err)
		}
	}
	return g.String()
}
