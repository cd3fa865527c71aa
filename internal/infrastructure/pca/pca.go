package pca

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/DRSN-tech/image-indexer/pkg/e"
	"gonum.org/v1/gonum/mat"
)

// artifact — сериализованная PCA-проекция, экспортированная из обученной
// scikit-learn модели: вектор средних и матрица компонент (k x d).
type artifact struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

// Projection применяет предобученную линейную проекцию к эмбеддингам.
type Projection struct {
	mean       *mat.VecDense
	components *mat.Dense
	inputDim   int
	outputDim  int
}

// Load читает артефакт проекции один раз при старте приложения.
func Load(path string) (*Projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, e.Wrap(path, e.ErrProjectionNotLoaded)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, e.Wrap(path, err)
	}

	return fromArtifact(&art)
}

func fromArtifact(art *artifact) (*Projection, error) {
	k := len(art.Components)
	if k == 0 || len(art.Mean) == 0 {
		return nil, e.ErrProjectionNotLoaded
	}

	d := len(art.Components[0])
	if d != len(art.Mean) {
		return nil, fmt.Errorf("components width %d doesn't match mean length %d", d, len(art.Mean))
	}

	flat := make([]float64, 0, k*d)
	for i, row := range art.Components {
		if len(row) != d {
			return nil, fmt.Errorf("components row %d has length %d, want %d", i, len(row), d)
		}
		flat = append(flat, row...)
	}

	return &Projection{
		mean:       mat.NewVecDense(d, art.Mean),
		components: mat.NewDense(k, d, flat),
		inputDim:   d,
		outputDim:  k,
	}, nil
}

// Transform проецирует каждый вектор: y = W * (x - mean).
func (p *Projection) Transform(vectors [][]float32) ([][]float32, error) {
	if p == nil || p.components == nil {
		return nil, e.ErrProjectionNotLoaded
	}

	result := make([][]float32, 0, len(vectors))
	for _, vec := range vectors {
		if len(vec) != p.inputDim {
			return nil, e.Wrap(fmt.Sprintf("got %d, want %d", len(vec), p.inputDim), e.ErrProjectionDimension)
		}

		centered := mat.NewVecDense(p.inputDim, nil)
		for i, v := range vec {
			centered.SetVec(i, float64(v)-p.mean.AtVec(i))
		}

		projected := mat.NewVecDense(p.outputDim, nil)
		projected.MulVec(p.components, centered)

		reduced := make([]float32, p.outputDim)
		for i := range reduced {
			reduced[i] = float32(projected.AtVec(i))
		}
		result = append(result, reduced)
	}

	return result, nil
}

// OutputDim возвращает размерность редуцированного вектора.
func (p *Projection) OutputDim() int {
	return p.outputDim
}

// InputDim возвращает ожидаемую размерность эмбеддинга сети.
func (p *Projection) InputDim() int {
	return p.inputDim
}
