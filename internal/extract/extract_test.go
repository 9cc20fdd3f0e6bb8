package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDocumentTextMarkersInPageOrder(t *testing.T) {
	pages := []PageText{
		{Number: 1, Text: "first page body"},
		{Number: 2, Text: "second page body"},
		{Number: 3, Text: "third page body"},
	}

	out := BuildDocumentText(pages)

	assert.Equal(t, 1, strings.Count(out, "=== PAGE 1 ==="))
	assert.Equal(t, 1, strings.Count(out, "=== PAGE 2 ==="))
	assert.Equal(t, 1, strings.Count(out, "=== PAGE 3 ==="))

	idx1 := strings.Index(out, "=== PAGE 1 ===")
	idx2 := strings.Index(out, "=== PAGE 2 ===")
	idx3 := strings.Index(out, "=== PAGE 3 ===")
	assert.Less(t, idx1, idx2)
	assert.Less(t, idx2, idx3)

	assert.Contains(t, out, "=== PAGE 1 ===\nfirst page body")
	assert.Contains(t, out, "=== PAGE 2 ===\nsecond page body")
}

func TestBuildDocumentTextSinglePage(t *testing.T) {
	out := BuildDocumentText([]PageText{{Number: 1, Text: "only page"}})
	assert.Equal(t, "=== PAGE 1 ===\nonly page", out)
}

func TestBuildDocumentTextEmpty(t *testing.T) {
	assert.Equal(t, "", BuildDocumentText(nil))
}

func TestUsableText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "normal statement text",
			text: "ACCOUNT SUMMARY\nOpening balance 1,234.56\nClosing balance 987.65",
			want: true,
		},
		{
			name: "too short",
			text: "Page 1",
			want: false,
		},
		{
			name: "empty",
			text: "",
			want: false,
		},
		{
			name: "identity-encoded garbage",
			text: strings.Repeat("�", 20),
			want: false,
		},
		{
			name: "currency symbols count as readable",
			text: "Total charges this period: £45.67 ($58.10 / €53.20) thank you",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usableText(tt.text))
		})
	}
}
