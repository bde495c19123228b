package iface

import "context"

// ImageData is a decoded 8-bit pixel buffer in BGR channel order.
type ImageData struct {
	Data     []byte
	Width    int
	Height   int
	Channels int
}

func (img ImageData) Empty() bool {
	return len(img.Data) == 0 || img.Width <= 0 || img.Height <= 0
}

// Tensor is one detector output layer: Rows anchors of Cols values each.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

func (t Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

type EngineConfig struct {
	ModelPath  string
	ConfigPath string
	Names      []string
	InputSize  int
	Workers    int
}

// Backend produces raw per-anchor output tensors for one image.
type Backend interface {
	Detect(ctx context.Context, image ImageData) ([]Tensor, error)
	CheckConfig() EngineConfig
	Destroy()
}

// Captioner produces a description of an encoded image.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}

// Translator maps text into the target language code.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}
