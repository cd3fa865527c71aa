package vision

import (
	"bytes"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"golang.org/x/image/draw"
)

const (
	cropSize = 224
	channels = 3
)

// Нормировочные константы ImageNet, с которыми обучалась VGG-16.
var (
	imagenetMean = [channels]float32{0.485, 0.456, 0.406}
	imagenetStd  = [channels]float32{0.229, 0.224, 0.225}
)

// Transformer приводит изображение к входному тензору сети:
// resize короткой стороны до 224, центральный кроп 224x224, нормализация.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform декодирует изображение и возвращает нормализованный CHW-тензор.
func (t *Transformer) Transform(data []byte) (*usecase.ImageTensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, e.Wrap(err.Error(), e.ErrUndecodableImage)
	}

	resized := resizeShortestSide(img, cropSize)
	cropped := centerCrop(resized, cropSize)

	return normalize(cropped), nil
}

// resizeShortestSide масштабирует изображение так, чтобы короткая сторона
// стала равна side, сохраняя пропорции.
func resizeShortestSide(img image.Image, side int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var dstW, dstH int
	if w < h {
		dstW = side
		dstH = (h*side + w/2) / w
	} else {
		dstH = side
		dstW = (w*side + h/2) / h
	}
	if dstW < side {
		dstW = side
	}
	if dstH < side {
		dstH = side
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// centerCrop вырезает центральный квадрат side x side.
func centerCrop(img *image.RGBA, side int) *image.RGBA {
	bounds := img.Bounds()
	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}

// normalize переводит пиксели в CHW float32 с нормировкой ImageNet.
func normalize(img *image.RGBA) *usecase.ImageTensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	data := make([]float32, channels*h*w)
	plane := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			offset := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			idx := y*w + x
			for c := 0; c < channels; c++ {
				v := float32(img.Pix[offset+c]) / 255.0
				data[c*plane+idx] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}

	return &usecase.ImageTensor{
		Data:     data,
		Channels: channels,
		Height:   int64(h),
		Width:    int64(w),
	}
}
