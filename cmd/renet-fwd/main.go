// renet-fwd runs one ReNet layer over an image and reports the resulting
// feature-map shape, optionally rendering the activations to a GIF.
package main

import (
	"flag"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	xdraw "golang.org/x/image/draw"
	"gorgonia.org/tensor"

	renet "github.com/LuckyOwl95/defusernn-models"
	"github.com/LuckyOwl95/defusernn-models/brnn"
	"github.com/LuckyOwl95/defusernn-models/encoding/featuremap"
)

var (
	imgPath = flag.String("image", "", "input image (png or jpeg)")
	cell    = flag.String("cell", "GRU", "recurrent cell variant: RNN, GRU or LSTM")
	window  = flag.Int("window", 2, "patch window size")
	hidden  = flag.Int("hidden", 50, "hidden units per direction")
	out     = flag.String("out", "", "optional feature-map GIF output path")
)

func main() {
	flag.Parse()
	if *imgPath == "" {
		log.Fatal("renet-fwd: -image is required")
	}

	c, err := brnn.ParseCell(*cell)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	layer, err := renet.New(renet.DefaultConf(*window, *hidden, c))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	x, h, w := loadImage(*imgPath, *window)
	log.Printf("input: (1, 3, %d, %d), window %d, cell %v", h, w, *window, c)

	fm, err := layer.Forward(x)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("feature map: %v", fm.Shape())

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		defer f.Close()
		enc := featuremap.NewEncoder(f, 4)
		if err := enc.Encode(fm, *imgPath); err != nil {
			log.Fatalf("%+v", err)
		}
		if err := enc.Flush(); err != nil {
			log.Fatalf("%+v", err)
		}
		log.Printf("wrote %s", *out)
	}
}

// loadImage decodes path, scales it down to the nearest window multiple if
// needed, and returns it as a (1, 3, h, w) tensor of [0, 1] floats.
func loadImage(path string, window int) (*tensor.Dense, int, int) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	b := src.Bounds()
	h := b.Dy() - b.Dy()%window
	w := b.Dx() - b.Dx()%window
	if h == 0 || w == 0 {
		log.Fatalf("renet-fwd: image %d×%d smaller than window %d", b.Dy(), b.Dx(), window)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), src, b, xdraw.Src, nil)

	backing := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := rgba.At(x, y).RGBA()
			backing[0*h*w+y*w+x] = float32(r) / 0xffff
			backing[1*h*w+y*w+x] = float32(g) / 0xffff
			backing[2*h*w+y*w+x] = float32(bl) / 0xffff
		}
	}
	return tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(backing)), h, w
}
