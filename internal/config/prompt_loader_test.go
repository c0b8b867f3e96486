package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptsFromFiles(t *testing.T) {
	tempDir := t.TempDir()

	systemPromptContent := "Test system prompt for tailoring"
	userPromptContent := "Tailor {{.ResumeText}} for {{.JobDescription}}"

	systemPromptFile := filepath.Join(tempDir, "system.tailor.md")
	userPromptFile := filepath.Join(tempDir, "user.tailor.md")

	if err := os.WriteFile(systemPromptFile, []byte(systemPromptContent+"\n"), 0600); err != nil {
		t.Fatalf("Failed to create test system prompt file: %v", err)
	}
	if err := os.WriteFile(userPromptFile, []byte(userPromptContent), 0600); err != nil {
		t.Fatalf("Failed to create test user prompt file: %v", err)
	}

	config := &Config{
		AI: AIConfig{
			Tailor: OperationAIConfig{
				Prompts: PromptConfig{
					SystemFile: systemPromptFile,
					UserFile:   userPromptFile,
				},
			},
		},
	}

	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatalf("Failed to load prompts from files: %v", err)
	}

	loaded := config.PromptsFor(OperationTailor)
	if loaded.System != systemPromptContent {
		t.Errorf("Expected system prompt %q, got %q", systemPromptContent, loaded.System)
	}
	if loaded.User != userPromptContent {
		t.Errorf("Expected user prompt %q, got %q", userPromptContent, loaded.User)
	}
	if loaded.SystemSource != "file" || loaded.UserSource != "file" {
		t.Errorf("Expected file sources, got %q and %q", loaded.SystemSource, loaded.UserSource)
	}

	if other := config.PromptsFor(OperationRefine); other.System != "" || other.User != "" {
		t.Errorf("Expected no refine overrides, got %+v", other)
	}
}

func TestPromptsForPrefersFilesOverInline(t *testing.T) {
	tempDir := t.TempDir()
	systemFile := filepath.Join(tempDir, "cover.md")
	if err := os.WriteFile(systemFile, []byte("from file"), 0600); err != nil {
		t.Fatal(err)
	}

	config := &Config{
		AI: AIConfig{
			CoverLetter: OperationAIConfig{
				Prompts: PromptConfig{
					System:     "inline system",
					SystemFile: systemFile,
					User:       "  inline user  ",
				},
			},
		},
	}
	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatal(err)
	}

	loaded := config.PromptsFor(OperationCoverLetter)
	if loaded.System != "from file" {
		t.Errorf("Expected file system prompt, got %q", loaded.System)
	}
	if loaded.User != "inline user" || loaded.UserSource != "config" {
		t.Errorf("Expected trimmed inline user prompt, got %q (%s)", loaded.User, loaded.UserSource)
	}
}

func TestPromptsDirDiscovery(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "refine.user.md"), []byte("refine override"), 0600); err != nil {
		t.Fatal(err)
	}

	config := &Config{AI: AIConfig{PromptsDir: tempDir}}
	if err := config.validatePromptFiles(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}
	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatal(err)
	}

	if got := config.PromptsFor(OperationRefine).User; got != "refine override" {
		t.Errorf("Expected discovered refine prompt, got %q", got)
	}
	if got := config.PromptsFor(OperationTailor).User; got != "" {
		t.Errorf("Expected no tailor prompt, got %q", got)
	}
}

func TestValidatePromptFiles(t *testing.T) {
	tempDir := t.TempDir()
	validFile := filepath.Join(tempDir, "valid.md")
	if err := os.WriteFile(validFile, []byte("Valid content"), 0600); err != nil {
		t.Fatalf("Failed to create valid test file: %v", err)
	}

	tests := []struct {
		name      string
		prompts   PromptConfig
		dir       string
		expectErr bool
	}{
		{name: "no files", expectErr: false},
		{name: "valid file", prompts: PromptConfig{SystemFile: validFile}, expectErr: false},
		{name: "missing file", prompts: PromptConfig{UserFile: filepath.Join(tempDir, "missing.md")}, expectErr: true},
		{name: "missing dir", dir: filepath.Join(tempDir, "nope"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{AI: AIConfig{PromptsDir: tt.dir, Tailor: OperationAIConfig{Prompts: tt.prompts}}}
			err := config.validatePromptFiles()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestLoadPromptFromFile(t *testing.T) {
	tempDir := t.TempDir()

	emptyFile := filepath.Join(tempDir, "empty.md")
	if err := os.WriteFile(emptyFile, []byte("  \n\t"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadPromptFromFile(emptyFile, "system", OperationTailor); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Errorf("Expected empty file error, got %v", err)
	}

	if _, err := loadPromptFromFile(filepath.Join(tempDir, "absent.md"), "user", OperationRefine); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}
