package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTransform(t *testing.T) {
	tr := NewTransformer()

	t.Run("produces 3x224x224 tensor", func(t *testing.T) {
		data := encodePNG(t, 32, 32, color.RGBA{R: 128, G: 128, B: 128, A: 255})

		tensor, err := tr.Transform(data)
		require.NoError(t, err)

		assert.Equal(t, int64(3), tensor.Channels)
		assert.Equal(t, int64(224), tensor.Height)
		assert.Equal(t, int64(224), tensor.Width)
		assert.Len(t, tensor.Data, 3*224*224)
	})

	t.Run("non square image is cropped to a square", func(t *testing.T) {
		data := encodePNG(t, 320, 160, color.RGBA{R: 10, G: 20, B: 30, A: 255})

		tensor, err := tr.Transform(data)
		require.NoError(t, err)
		assert.Equal(t, int64(224), tensor.Height)
		assert.Equal(t, int64(224), tensor.Width)
	})

	t.Run("applies imagenet normalization", func(t *testing.T) {
		// Белое изображение: каждый канал равен (1 - mean) / std
		data := encodePNG(t, 64, 64, color.RGBA{R: 255, G: 255, B: 255, A: 255})

		tensor, err := tr.Transform(data)
		require.NoError(t, err)

		plane := 224 * 224
		for c := 0; c < 3; c++ {
			want := (1.0 - imagenetMean[c]) / imagenetStd[c]
			got := tensor.Data[c*plane]
			assert.InDelta(t, float64(want), float64(got), 1e-5)
		}
	})

	t.Run("channel planes are laid out CHW", func(t *testing.T) {
		// Чистый красный: R-плоскость максимальна, G и B ниже нуля после нормировки
		data := encodePNG(t, 64, 64, color.RGBA{R: 255, A: 255})

		tensor, err := tr.Transform(data)
		require.NoError(t, err)

		plane := 224 * 224
		assert.Greater(t, tensor.Data[0], float32(0))
		assert.Less(t, tensor.Data[plane], float32(0))
		assert.Less(t, tensor.Data[2*plane], float32(0))
	})

	t.Run("undecodable bytes", func(t *testing.T) {
		_, err := tr.Transform([]byte("not an image"))
		assert.ErrorIs(t, err, e.ErrUndecodableImage)
	})
}

func TestResizeShortestSide(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "landscape", w: 640, h: 480, wantW: 299, wantH: 224},
		{name: "portrait", w: 480, h: 640, wantW: 224, wantH: 299},
		{name: "square upscale", w: 32, h: 32, wantW: 224, wantH: 224},
		{name: "already target", w: 224, h: 224, wantW: 224, wantH: 224},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			dst := resizeShortestSide(src, 224)

			assert.Equal(t, tt.wantW, dst.Bounds().Dx())
			assert.Equal(t, tt.wantH, dst.Bounds().Dy())
			assert.GreaterOrEqual(t, dst.Bounds().Dx(), 224)
			assert.GreaterOrEqual(t, dst.Bounds().Dy(), 224)
		})
	}
}

func TestCenterCrop(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 250))
	// Центральный пиксель помечен, после кропа он должен остаться в центре
	src.Set(150, 125, color.RGBA{R: 255, A: 255})

	dst := centerCrop(src, 224)

	assert.Equal(t, 224, dst.Bounds().Dx())
	assert.Equal(t, 224, dst.Bounds().Dy())

	r, _, _, _ := dst.At(112, 112).RGBA()
	assert.Equal(t, uint32(math.MaxUint16), r)
}
