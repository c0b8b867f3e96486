package common

import (
	"testing"
)

func TestValidateOutputFormat(t *testing.T) {
	supported := []string{"json", "markdown", "text"}

	tests := []struct {
		name             string
		format           string
		supportedFormats []string
		expectedError    string
	}{
		{name: "json", format: "json", supportedFormats: supported},
		{name: "markdown", format: "markdown", supportedFormats: supported},
		{name: "text", format: "text", supportedFormats: supported},
		{
			name:             "unknown format",
			format:           "xml",
			supportedFormats: supported,
			expectedError:    "unsupported output format 'xml'. Supported formats: [json markdown text]",
		},
		{
			name:             "case sensitive",
			format:           "JSON",
			supportedFormats: supported,
			expectedError:    "unsupported output format 'JSON'. Supported formats: [json markdown text]",
		},
		{
			name:             "empty format",
			format:           "",
			supportedFormats: supported,
			expectedError:    "unsupported output format ''. Supported formats: [json markdown text]",
		},
		{name: "no restrictions", format: "xml", supportedFormats: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supportedFormats)
			if tt.expectedError == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if err.Error() != tt.expectedError {
				t.Errorf("Expected error '%s', got '%s'", tt.expectedError, err.Error())
			}
		})
	}
}

func TestValidateTextColor(t *testing.T) {
	tests := []struct {
		color   string
		wantErr bool
	}{
		{"", false},
		{"   ", false},
		{"#1F4E79", false},
		{"1f4e79", false},
		{"#FFF", true},
		{"blue", true},
		{"#GGGGGG", true},
	}
	for _, tt := range tests {
		err := ValidateTextColor(tt.color)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTextColor(%q) error = %v, wantErr %v", tt.color, err, tt.wantErr)
		}
	}
}

func TestNormalizeFeedback(t *testing.T) {
	got := NormalizeFeedback([]string{"  shorten the summary ", "", "   ", "mention Go"})
	want := []string{"shorten the summary", "mention Go"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := NormalizeFeedback(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func BenchmarkValidateOutputFormat(b *testing.B) {
	supportedFormats := []string{"json", "markdown", "text"}

	b.Run("valid format", func(b *testing.B) {
		for b.Loop() {
			_ = ValidateOutputFormat("json", supportedFormats)
		}
	})

	b.Run("invalid format", func(b *testing.B) {
		for b.Loop() {
			_ = ValidateOutputFormat("xml", supportedFormats)
		}
	})
}
