package domain

import (
	"testing"

	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIFAR10Labels(t *testing.T) {
	labels := CIFAR10Labels()

	assert.Equal(t, 10, labels.NumClasses())
	assert.Equal(t, 0, labels["airplane"])
	assert.Equal(t, 9, labels["truck"])
}

func TestOneHot(t *testing.T) {
	labels := CIFAR10Labels()

	t.Run("known label", func(t *testing.T) {
		vec, err := labels.OneHot("cat")
		require.NoError(t, err)

		require.Len(t, vec, 10)
		for i, v := range vec {
			if i == labels["cat"] {
				assert.Equal(t, float32(1), v)
			} else {
				assert.Zero(t, v)
			}
		}
	})

	t.Run("every label maps to a unique position", func(t *testing.T) {
		seen := make(map[int]string, labels.NumClasses())
		for label, idx := range labels {
			vec, err := labels.OneHot(label)
			require.NoError(t, err)
			assert.Equal(t, float32(1), vec[idx])

			prev, dup := seen[idx]
			require.Falsef(t, dup, "labels %q and %q share index %d", prev, label, idx)
			seen[idx] = label
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := labels.OneHot("lizard")
		assert.ErrorIs(t, err, e.ErrUnknownLabel)
	})

	t.Run("empty label", func(t *testing.T) {
		_, err := labels.OneHot("")
		assert.ErrorIs(t, err, e.ErrUnknownLabel)
	})
}
