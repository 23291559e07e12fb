package errors

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("disk full")
	ee := New(base).
		Component("resultstore").
		Category(CategoryFileIO).
		Context("path", "/data/images/x.jpg").
		Build()

	assert.Equal(t, "disk full", ee.Error())
	assert.Equal(t, "resultstore", ee.Component)
	assert.Equal(t, CategoryFileIO, ee.Category)
	assert.Equal(t, "/data/images/x.jpg", ee.Context["path"])
	assert.False(t, ee.Timestamp.IsZero())
	assert.True(t, Is(ee, base), "enhanced error should match wrapped error")
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("save failed: %d rows", 3).Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, "save failed: 3 rows", ee.Error())
}

func TestUnwrapChain(t *testing.T) {
	t.Parallel()

	ee := New(Newf("open %s: %w", "x.json", fs.ErrNotExist).Build()).
		Category(CategoryNotFound).
		Build()

	assert.True(t, Is(ee, fs.ErrNotExist))

	var target *EnhancedError
	require.True(t, As(ee, &target))
	assert.Equal(t, CategoryNotFound, target.Category)
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.Context["k"])
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryDatabase).Build()
	b := Newf("b").Category(CategoryDatabase).Build()
	c := Newf("c").Category(CategoryFileIO).Build()

	assert.True(t, Is(a, b), "same category should match")
	assert.False(t, Is(a, c), "different category should not match")
}
