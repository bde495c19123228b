package engine

import (
	"fmt"
	"image"
	"os"

	"ImageInsightServer/detection"
	iface "ImageInsightServer/interface"

	"gocv.io/x/gocv"
)

const (
	UNREGISTERED = 0x0001
	IDLE         = 0x0003
	BUSY         = 0x0004
)

const DefaultInputSize = detection.DefaultInputSize

// runner is one loaded network. It is not safe for concurrent use and must
// stay on the goroutine that created it.
type runner interface {
	Forward(img iface.ImageData) ([]iface.Tensor, error)
	Close() error
}

// Detector runs a darknet network through OpenCV's dnn module.
type Detector struct {
	ModelPath  string
	ConfigPath string
	InputSize  int
	State      int
	net        gocv.Net
	outNames   []string
}

func loadDetector(cfg iface.EngineConfig) (runner, error) {
	d := &Detector{
		ModelPath:  cfg.ModelPath,
		ConfigPath: cfg.ConfigPath,
		InputSize:  cfg.InputSize,
		State:      UNREGISTERED,
	}
	if d.InputSize <= 0 {
		d.InputSize = DefaultInputSize
	}
	for _, path := range []string{d.ModelPath, d.ConfigPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("model file not found: %w", err)
		}
	}
	net := gocv.ReadNetFromDarknet(d.ConfigPath, d.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load darknet model %s (config %s)", d.ModelPath, d.ConfigPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendOpenCV); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn target: %w", err)
	}
	d.net = net
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayerByID(id)
		d.outNames = append(d.outNames, layer.GetName())
	}
	if len(d.outNames) == 0 {
		net.Close()
		return nil, fmt.Errorf("model %s has no output layers", d.ModelPath)
	}
	d.State = IDLE
	return d, nil
}

// Forward runs one image through the network and copies every output layer
// out of OpenCV memory.
func (d *Detector) Forward(img iface.ImageData) ([]iface.Tensor, error) {
	if d.State != IDLE {
		return nil, fmt.Errorf("detector not ready (state %#x)", d.State)
	}
	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	d.State = BUSY
	defer func() { d.State = IDLE }()

	size := image.Pt(d.InputSize, d.InputSize)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.outNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	tensors := make([]iface.Tensor, 0, len(outputs))
	for i, out := range outputs {
		data, err := out.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("failed to read output layer %s: %w", d.outNames[i], err)
		}
		tensors = append(tensors, iface.Tensor{
			Rows: out.Rows(),
			Cols: out.Cols(),
			Data: append([]float32(nil), data...),
		})
	}
	return tensors, nil
}

func (d *Detector) Close() error {
	d.State = UNREGISTERED
	return d.net.Close()
}
