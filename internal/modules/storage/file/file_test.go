package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFor(t *testing.T) {
	cases := map[string]string{
		"image/png":                "image",
		"image/jpeg":               "image",
		"application/pdf":          "document",
		"text/plain":               "document",
		"text/csv":                 "document",
		"application/json":         "data",
		"application/vnd.ms-excel": "data",
		"application/octet-stream": "misc",
	}
	for mime, want := range cases {
		assert.Equal(t, want, kindFor(mime), mime)
	}
}

func TestAnalyzeTextPreviewAndCSVRows(t *testing.T) {
	svc := &Service{}

	result := &UploadResult{}
	svc.analyze(result, "text/csv; charset=utf-8", []byte("a,b\n1,2\n3,4\n"))
	assert.Equal(t, 3, result.CSVRows)
	assert.Equal(t, "a,b\n1,2\n3,4\n", result.TextPreview)

	long := make([]byte, 0, 2000)
	for i := 0; i < 2000; i++ {
		long = append(long, 'x')
	}
	result = &UploadResult{}
	svc.analyze(result, "text/plain", long)
	assert.Len(t, result.TextPreview, 500)

	result = &UploadResult{}
	svc.analyze(result, "image/png", []byte{0x89, 0x50})
	assert.Empty(t, result.TextPreview)
	assert.Zero(t, result.CSVRows)
}
