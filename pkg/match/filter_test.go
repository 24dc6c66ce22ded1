package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1024", want: 1024},
		{in: "1KB", want: 1000},
		{in: "1kib", want: 1024},
		{in: "100MiB", want: 100 * MiB},
		{in: "1.5GB", want: 1500 * MB},
		{in: " 2 MB ", want: 2 * MB},
		{in: "", wantErr: true},
		{in: "MB", wantErr: true},
		{in: "10XB", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
		{in: "9999999999TiB", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.5KiB", FormatSize(1536))
	assert.Equal(t, "100.0MiB", FormatSize(100*MiB))
	assert.Equal(t, "2.0GiB", FormatSize(2*GiB))
}

func TestSizeFilter(t *testing.T) {
	f, err := NewSizeFilter(&SizeFilterConfig{Min: "1KiB", Max: "1MiB"})
	require.NoError(t, err)

	assert.False(t, f.Match(&Candidate{Size: 100}))
	assert.True(t, f.Match(&Candidate{Size: KiB}))
	assert.True(t, f.Match(&Candidate{Size: MiB}))
	assert.False(t, f.Match(&Candidate{Size: MiB + 1}))
	assert.Equal(t, "size 1.0KiB..1.0MiB", f.String())

	f, err = NewSizeFilter(&SizeFilterConfig{Max: "50MB"})
	require.NoError(t, err)
	assert.Equal(t, "size <= 47.7MiB", f.String())

	none, err := NewSizeFilter(&SizeFilterConfig{})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = NewSizeFilter(&SizeFilterConfig{Min: "2MB", Max: "1MB"})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestExtensionFilter(t *testing.T) {
	f, err := NewExtensionFilter([]string{"zip", ".DOCX"})
	require.NoError(t, err)

	assert.True(t, f.Match(&Candidate{Path: "docs/spec.zip"}))
	assert.True(t, f.Match(&Candidate{Path: "docs/SPEC.ZIP"}))
	assert.True(t, f.Match(&Candidate{Path: "a.docx"}))
	assert.False(t, f.Match(&Candidate{Path: "notes.txt"}))
	assert.False(t, f.Match(&Candidate{Path: "zip"}))

	_, err = NewExtensionFilter([]string{"a/b"})
	assert.ErrorIs(t, err, ErrInvalidExtension)
}

func TestCompositeFilter(t *testing.T) {
	cf, err := NewFilterFromConfig(&FilterConfig{
		Size:       &SizeFilterConfig{Max: "1KiB"},
		Extensions: []string{".zip"},
	})
	require.NoError(t, err)
	require.Len(t, cf.Filters(), 2)

	assert.True(t, cf.Match(&Candidate{Path: "a.zip", Size: 10}))

	rejected := cf.Reject(&Candidate{Path: "a.txt", Size: 10})
	require.NotNil(t, rejected)
	assert.Equal(t, "extension in .zip", rejected.String())

	rejected = cf.Reject(&Candidate{Path: "a.zip", Size: 2 * KiB})
	require.NotNil(t, rejected)
	assert.Equal(t, "size <= 1.0KiB", rejected.String())

	all, err := NewFilterFromConfig(nil)
	require.NoError(t, err)
	assert.True(t, all.Match(&Candidate{Path: "anything"}))
	assert.Equal(t, "none", all.String())

	var nilFilter *CompositeFilter
	assert.Nil(t, nilFilter.Reject(&Candidate{}))
}
