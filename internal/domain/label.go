package domain

import "github.com/DRSN-tech/image-indexer/pkg/e"

// LabelMapping отображает имя класса CIFAR-10 в его индекс.
type LabelMapping map[string]int

// CIFAR10Labels возвращает стандартное отображение классов CIFAR-10.
func CIFAR10Labels() LabelMapping {
	return LabelMapping{
		"airplane":   0,
		"automobile": 1,
		"bird":       2,
		"cat":        3,
		"deer":       4,
		"dog":        5,
		"frog":       6,
		"horse":      7,
		"ship":       8,
		"truck":      9,
	}
}

// NumClasses возвращает количество классов в отображении.
func (m LabelMapping) NumClasses() int {
	return len(m)
}

// OneHot возвращает one-hot вектор класса длиной NumClasses.
// Для неизвестного класса возвращает e.ErrUnknownLabel.
func (m LabelMapping) OneHot(label string) ([]float32, error) {
	idx, ok := m[label]
	if !ok {
		return nil, e.Wrap(label, e.ErrUnknownLabel)
	}

	vec := make([]float32, len(m))
	vec[idx] = 1
	return vec, nil
}
