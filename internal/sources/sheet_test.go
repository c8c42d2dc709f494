package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSheetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    SheetRef
		wantErr bool
	}{
		{
			name: "edit url with gid in fragment",
			url:  "https://docs.google.com/spreadsheets/d/1AbC-d_Ef/edit#gid=123456",
			want: SheetRef{SpreadsheetID: "1AbC-d_Ef", GID: "123456"},
		},
		{
			name: "gid in query",
			url:  "https://docs.google.com/spreadsheets/d/abc/edit?usp=sharing&gid=7",
			want: SheetRef{SpreadsheetID: "abc", GID: "7"},
		},
		{
			name: "gid defaults to first tab",
			url:  "  https://docs.google.com/spreadsheets/d/abc/edit?usp=sharing ",
			want: SheetRef{SpreadsheetID: "abc", GID: "0"},
		},
		{
			name:    "no spreadsheet id",
			url:     "https://example.com/spreadsheets/",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSheetURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSheetURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportURL(t *testing.T) {
	ref := SheetRef{SpreadsheetID: "abc", GID: "42"}
	assert.Equal(t,
		"https://docs.google.com/spreadsheets/d/abc/export?format=xlsx&gid=42",
		ref.ExportURL("https://docs.google.com/spreadsheets/d/"))
	assert.Equal(t, "Google Sheet abc#gid=42", ref.Label())
}
