package rdb

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string
	Count  int
	Scale  float32
	Values []uint32
}

type other struct {
	Label string
}

func TestRoundTripBuilder(t *testing.T) {
	b := NewBuilder()
	v := sample{Name: "mesh", Count: 3, Scale: 0.5, Values: []uint32{1, 2, 3}}
	require.NoError(t, b.Add("geometry/mesh", v))

	got, err := Fetch[sample](b, "geometry/mesh")
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestExactNameMatching(t *testing.T) {
	var table = []struct{ short, long string }{
		{"alpha", "alpha_beta"},
		{"obj/a", "obj/ab"},
	}
	for _, tab := range table {
		b := NewBuilder()
		require.NoError(t, b.Add(tab.long, other{Label: tab.long}))
		require.NoError(t, b.Add(tab.short, other{Label: tab.short}))

		got, err := Fetch[other](b, tab.short)
		require.NoError(t, err)
		assert.Equal(t, tab.short, got.Label)

		got, err = Fetch[other](b, tab.long)
		require.NoError(t, err)
		assert.Equal(t, tab.long, got.Label)
	}

	b := NewBuilder()
	require.NoError(t, b.Add("alpha", other{Label: "alpha"}))
	_, err := Fetch[other](b, "alp")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	_, err = Fetch[other](b, "alpha_beta")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestNameLengthBoundary(t *testing.T) {
	b := NewBuilder()
	name63 := strings.Repeat("n", 63)
	require.NoError(t, b.Add(name63, other{Label: "ok"}))
	infos := b.Entries()
	require.Len(t, infos, 1)
	assert.Equal(t, name63, infos[0].Name)

	got, err := Fetch[other](b, name63)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Label)

	for _, n := range []int{64, 65, 200} {
		err := b.Add(strings.Repeat("n", n), other{})
		assert.True(t, errors.Is(err, ErrNameTooLong), "len %d: got %v", n, err)
		err = b.Upsert(strings.Repeat("n", n), other{})
		assert.True(t, errors.Is(err, ErrNameTooLong), "len %d: got %v", n, err)
		assert.Equal(t, 1, b.Len())
	}
}

func TestInvalidNames(t *testing.T) {
	b := NewBuilder()
	for _, name := range []string{"", "a\x00b"} {
		err := b.Add(name, other{})
		assert.True(t, errors.Is(err, ErrInvalidName), "%q: got %v", name, err)
	}
	assert.Equal(t, 0, b.Len())
}

func TestUpsert(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("a", other{Label: "a1"}))
	require.NoError(t, b.Add("b", other{Label: "b1"}))
	require.NoError(t, b.Add("c", sample{Name: "c1", Values: []uint32{9}}))

	// same value twice leaves everything alone
	require.NoError(t, b.Upsert("b", other{Label: "b1"}))
	require.NoError(t, b.Upsert("b", other{Label: "b1"}))
	assert.Equal(t, 3, b.Len())
	got, err := Fetch[other](b, "b")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.Label)

	// a bigger value replaces in place
	require.NoError(t, b.Upsert("b", other{Label: "a much longer label than before"}))
	assert.Equal(t, 3, b.Len())
	names := []string{}
	for _, e := range b.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	a, err := Fetch[other](b, "a")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.Label)
	c, err := Fetch[sample](b, "c")
	require.NoError(t, err)
	assert.Equal(t, sample{Name: "c1", Values: []uint32{9}}, c)

	// a new name appends
	require.NoError(t, b.Upsert("d", other{Label: "d1"}))
	assert.Equal(t, 4, b.Len())

	// the type may change on upsert
	require.NoError(t, b.Upsert("a", sample{Name: "now a sample"}))
	_, err = Fetch[other](b, "a")
	assert.True(t, errors.Is(err, ErrTypeMismatch), "got %v", err)
}

func TestUpsertDropsDuplicates(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("dup", other{Label: "first"}))
	require.NoError(t, b.Add("dup", other{Label: "second"}))
	got, err := Fetch[other](b, "dup")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Label)

	require.NoError(t, b.Upsert("dup", other{Label: "third"}))
	assert.Equal(t, 1, b.Len())
	got, err = Fetch[other](b, "dup")
	require.NoError(t, err)
	assert.Equal(t, "third", got.Label)
}

func TestTypeMismatch(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("x", other{Label: "x"}))
	_, err := Fetch[sample](b, "x")
	assert.True(t, errors.Is(err, ErrTypeMismatch), "got %v", err)

	// pointers tag like their element type
	p, err := Fetch[*other](b, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", p.Label)
}

func TestFetchFailuresAreHeaderErrors(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("x", other{Label: "x"}))

	_, err := Fetch[other](b, "y")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
	assert.False(t, errors.Is(err, ErrTypeMismatch), "got %v", err)

	_, err = Fetch[sample](b, "x")
	assert.True(t, errors.Is(err, ErrTypeMismatch), "got %v", err)
	assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
	assert.False(t, errors.Is(err, ErrNotFound), "got %v", err)

	// a header failure is not a missing entry
	assert.False(t, errors.Is(ErrBadHeader, ErrNotFound))
}

func TestTypeTagStable(t *testing.T) {
	assert.Equal(t, TagFor(other{}), TagFor(&other{}))
	assert.NotEqual(t, TagFor(other{}), TagFor(sample{}))
	assert.Equal(t, TagFor(other{}), TagFor(other{Label: "different"}))
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.rdb")

	b := NewBuilder()
	require.NoError(t, b.Add("one", other{Label: "1"}))
	require.NoError(t, b.Add("two", sample{Name: "2", Values: []uint32{2, 2}}))
	require.NoError(t, b.Save(path))

	b2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, b.Entries(), b2.Entries())
	got, err := Fetch[sample](b2, "two")
	require.NoError(t, err)
	assert.Equal(t, sample{Name: "2", Values: []uint32{2, 2}}, got)

	// saving again over the same path replaces it
	require.NoError(t, b2.Upsert("one", other{Label: "uno"}))
	require.NoError(t, b2.Save(path))
	b3, err := Load(path)
	require.NoError(t, err)
	one, err := Fetch[other](b3, "one")
	require.NoError(t, err)
	assert.Equal(t, "uno", one.Label)

	matches, err := filepath.Glob(filepath.Join(dir, ".*scratch*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWriteToLayout(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("k", other{Label: "v"}))
	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	data := buf.Bytes()
	assert.Equal(t, "RDB0", string(data[:4]))
	assert.Equal(t, []byte{1, 0}, data[4:6])
	assert.Equal(t, []byte{1, 0, 0, 0}, data[8:12])
	assert.Equal(t, headerSize+entrySize+len(b.data), len(data))
	assert.Equal(t, byte('k'), data[headerSize+20])
	assert.Equal(t, byte(0), data[headerSize+21])
}

func TestRemove(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add("a", other{Label: "a"}))
	require.NoError(t, b.Add("b", other{Label: "b"}))
	require.NoError(t, b.Add("a", other{Label: "a2"}))
	require.NoError(t, b.Add("c", sample{Name: "c", Values: []uint32{3}}))

	assert.Equal(t, 2, b.Remove("a"))
	assert.Equal(t, 0, b.Remove("a"))
	assert.Equal(t, 2, b.Len())
	assert.False(t, Has(b, "a"))

	got, err := Fetch[other](b, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Label)
	c, err := Fetch[sample](b, "c")
	require.NoError(t, err)
	assert.Equal(t, []uint32{3}, c.Values)
}
