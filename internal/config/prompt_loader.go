package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadedPrompts holds the prompt overrides of one operation after file loading.
// Empty fields fall back to the built-in prompts.
type LoadedPrompts struct {
	System       string
	User         string
	SystemSource string // "file", "config" or ""
	UserSource   string
}

// PromptsFor returns the prompt overrides of an operation: file content first, then inline config.
func (c *Config) PromptsFor(operation string) LoadedPrompts {
	loaded := c.prompts[operation]
	opCfg := c.promptConfig(operation)
	if loaded.System == "" && strings.TrimSpace(opCfg.System) != "" {
		loaded.System = strings.TrimSpace(opCfg.System)
		loaded.SystemSource = "config"
	}
	if loaded.User == "" && strings.TrimSpace(opCfg.User) != "" {
		loaded.User = strings.TrimSpace(opCfg.User)
		loaded.UserSource = "config"
	}
	return loaded
}

func (c *Config) promptConfig(operation string) PromptConfig {
	switch operation {
	case OperationTailor:
		return c.AI.Tailor.Prompts
	case OperationRefine:
		return c.AI.Refine.Prompts
	case OperationCoverLetter:
		return c.AI.CoverLetter.Prompts
	}
	return PromptConfig{}
}

// promptFiles returns the system and user prompt files of an operation.
// Files in promptsDir named "<operation>.system.md" and "<operation>.user.md" are picked up
// when no explicit path is configured.
func (c *Config) promptFiles(operation string) (systemFile, userFile string) {
	p := c.promptConfig(operation)
	systemFile, userFile = p.SystemFile, p.UserFile
	if c.AI.PromptsDir == "" {
		return systemFile, userFile
	}
	if systemFile == "" {
		if candidate := filepath.Join(c.AI.PromptsDir, operation+".system.md"); fileExists(candidate) {
			systemFile = candidate
		}
	}
	if userFile == "" {
		if candidate := filepath.Join(c.AI.PromptsDir, operation+".user.md"); fileExists(candidate) {
			userFile = candidate
		}
	}
	return systemFile, userFile
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadPromptsFromFiles loads custom prompts from external files if file paths are specified
func (c *Config) loadPromptsFromFiles() error {
	c.prompts = make(map[string]LoadedPrompts, len(Operations))
	count := 0

	for _, op := range Operations {
		systemFile, userFile := c.promptFiles(op)
		var loaded LoadedPrompts

		if systemFile != "" {
			content, err := loadPromptFromFile(systemFile, "system", op)
			if err != nil {
				return err
			}
			loaded.System, loaded.SystemSource = content, "file"
			count++
		}
		if userFile != "" {
			content, err := loadPromptFromFile(userFile, "user", op)
			if err != nil {
				return err
			}
			loaded.User, loaded.UserSource = content, "file"
			count++
		}
		c.prompts[op] = loaded
	}

	if count > 0 {
		log.Printf("[CONFIG] Loaded %d custom prompt file(s)", count)
	}
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, promptType, operation string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s %s prompt file '%s': %w", promptType, operation, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s %s prompt file not found: %s", promptType, operation, absPath)
		}
		return "", fmt.Errorf("failed to read %s %s prompt file '%s': %w", promptType, operation, absPath, err)
	}

	trimmedContent := strings.TrimSpace(string(content))
	if trimmedContent == "" {
		return "", fmt.Errorf("%s %s prompt file '%s' is empty", promptType, operation, absPath)
	}

	log.Printf("[CONFIG] Loaded %s %s prompt from file: %s (%d characters)",
		promptType, operation, absPath, len(trimmedContent))
	return trimmedContent, nil
}

// validatePromptFiles validates that explicitly configured prompt files exist before loading
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	validateFile := func(filePath, promptType, operation string) {
		if filePath == "" {
			return
		}
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s %s prompt: %s", promptType, operation, filePath))
			return
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s %s prompt file not found: %s", promptType, operation, absPath))
		}
	}

	for _, op := range Operations {
		p := c.promptConfig(op)
		validateFile(p.SystemFile, "system", op)
		validateFile(p.UserFile, "user", op)
	}

	if c.AI.PromptsDir != "" {
		if info, err := os.Stat(c.AI.PromptsDir); err != nil || !info.IsDir() {
			validationErrors = append(validationErrors, fmt.Sprintf("prompts directory not found: %s", c.AI.PromptsDir))
		}
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}
	return nil
}
