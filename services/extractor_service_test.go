package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiletypeForFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"report.pdf", "pdf"},
		{"Report.PDF", "pdf"},
		{"notes.txt", "text"},
		{"notes.text", "text"},
		{"README.md", "text"},
	}
	for _, tc := range cases {
		got, err := FiletypeForFilename(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	for _, name := range []string{"image.png", "archive.zip", "noext"} {
		_, err := FiletypeForFilename(name)
		assert.True(t, errors.Is(err, ErrUnsupportedFileType), name)
	}
}

func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText([]byte("héllo wörld"), "text")
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", text)
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	_, err := ExtractText([]byte{0xff, 0xfe, 0xfd}, "text")
	assert.True(t, errors.Is(err, ErrExtraction))
}

func TestExtractTextUnsupportedFiletype(t *testing.T) {
	_, err := ExtractText([]byte("data"), "docx")
	assert.True(t, errors.Is(err, ErrUnsupportedFileType))
}

func TestExtractTextMalformedPDF(t *testing.T) {
	_, err := ExtractText([]byte("not a pdf"), "pdf")
	assert.True(t, errors.Is(err, ErrExtraction))
}
