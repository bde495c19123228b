package engine

import (
	"fmt"

	"ImageInsightServer/detection"
	iface "ImageInsightServer/interface"

	"gocv.io/x/gocv"
)

// DecodeImage turns encoded upload bytes (JPEG, PNG, ...) into a BGR pixel
// buffer. Undecodable input yields detection.ErrInvalidImage.
func DecodeImage(raw []byte) (iface.ImageData, error) {
	if len(raw) == 0 {
		return iface.ImageData{}, detection.ErrInvalidImage
	}
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return iface.ImageData{}, fmt.Errorf("%w: %w", detection.ErrInvalidImage, err)
	}
	defer mat.Close()
	if mat.Empty() {
		return iface.ImageData{}, detection.ErrInvalidImage
	}
	return iface.ImageData{
		Data:     mat.ToBytes(),
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
	}, nil
}

// toMat rebuilds a 3-channel BGR Mat from a pixel buffer.
func toMat(img iface.ImageData) (gocv.Mat, error) {
	var mt gocv.MatType
	var conv gocv.ColorConversionCode
	switch img.Channels {
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 1:
		mt, conv = gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR
	case 4:
		mt, conv = gocv.MatTypeCV8UC4, gocv.ColorBGRAToBGR
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", img.Channels)
	}
	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, mt, img.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build mat: %w", err)
	}
	if img.Channels == 3 {
		return mat, nil
	}
	defer mat.Close()
	bgr := gocv.NewMat()
	if err := gocv.CvtColor(mat, &bgr, conv); err != nil {
		bgr.Close()
		return gocv.NewMat(), fmt.Errorf("failed to convert to BGR: %w", err)
	}
	return bgr, nil
}
