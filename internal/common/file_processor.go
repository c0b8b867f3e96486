package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cvtailor/internal/errors"
	"cvtailor/internal/types"
	"cvtailor/internal/utils"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"
)

// FileProcessor reads CLI inputs: plain text, office and PDF documents, or stdin.
type FileProcessor struct {
	logger  *errors.Logger
	maxSize int64
	stdin   io.Reader
	convert func(path string) (string, error)
}

// NewFileProcessor creates a new file processor. A maxSize of 0 disables the size limit.
func NewFileProcessor(logger *errors.Logger, maxSize int64) *FileProcessor {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &FileProcessor{
		logger:  logger,
		maxSize: maxSize,
		stdin:   os.Stdin,
		convert: convertDocument,
	}
}

// SetStdin replaces the reader used for the "-" path
func (fp *FileProcessor) SetStdin(r io.Reader) {
	fp.stdin = r
}

func convertDocument(path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", err
	}
	if res.Error != "" {
		return "", fmt.Errorf("%s", res.Error)
	}
	return res.Body, nil
}

// ReadInput returns the text content of path. "-" reads standard input.
// Documents (.pdf, .docx, .doc, .odt, .rtf) are converted to plain text.
func (fp *FileProcessor) ReadInput(path string) (string, error) {
	if path == utils.StdinPath {
		return fp.readStdin()
	}

	if err := utils.ValidateInputFile(path, fp.maxSize); err != nil {
		code := errors.ErrCodeFileNotReadable
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			code = errors.ErrCodeFileNotFound
		}
		return "", errors.NewIOError(code, fmt.Sprintf("Invalid input file %s", path), err)
	}

	if utils.IsDocumentFile(path) {
		text, err := fp.convert(path)
		if err != nil {
			return "", errors.NewIOError(errors.ErrCodeInvalidFormat,
				fmt.Sprintf("Cannot extract text from %s", path), err)
		}
		fp.logger.Debug("Converted document to text", "filename", path, "chars", len(text))
		return text, nil
	}

	if !utils.IsTextFile(path) {
		fp.logger.Warn("File may not be a text file", "filename", path)
	}
	return fp.ReadFile(path)
}

func (fp *FileProcessor) readStdin() (string, error) {
	if fp.stdin == nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "Standard input is not available", nil)
	}
	r := fp.stdin
	if fp.maxSize > 0 {
		r = io.LimitReader(fp.stdin, fp.maxSize+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "Failed to read standard input", err)
	}
	if fp.maxSize > 0 && int64(len(content)) > fp.maxSize {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("Standard input exceeds the %s limit", utils.FormatFileSize(fp.maxSize)), nil)
	}
	return string(content), nil
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return string(content), nil
}

// ReadInputs reads every path concurrently and returns the contents in order.
// Standard input may appear at most once.
func (fp *FileProcessor) ReadInputs(ctx context.Context, paths ...string) ([]string, error) {
	stdinCount := 0
	for _, p := range paths {
		if p == utils.StdinPath {
			stdinCount++
		}
	}
	if stdinCount > 1 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Standard input can only be used for one input", nil)
	}

	contents := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, err := fp.ReadInput(path)
			if err != nil {
				return err
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	if err := utils.EnsureDir(filepath.Dir(filename)); err != nil {
		return errors.NewIOError(errors.ErrCodeExportFailed,
			fmt.Sprintf("Cannot create directory for %s", filename), err)
	}
	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError(errors.ErrCodeExportFailed,
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ReadResumeJSON loads a saved résumé document and validates it.
func (fp *FileProcessor) ReadResumeJSON(path string) (*types.ResumeDocument, error) {
	var doc types.ResumeDocument
	if err := fp.readJSON(path, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadCoverLetterJSON loads a saved cover letter and validates it.
func (fp *FileProcessor) ReadCoverLetterJSON(path string) (*types.CoverLetter, error) {
	var letter types.CoverLetter
	if err := fp.readJSON(path, &letter); err != nil {
		return nil, err
	}
	if err := letter.Validate(); err != nil {
		return nil, err
	}
	return &letter, nil
}

func (fp *FileProcessor) readJSON(path string, v any) error {
	var content string
	var err error
	if path == utils.StdinPath {
		content, err = fp.readStdin()
	} else {
		if err := utils.ValidateInputFile(path, fp.maxSize); err != nil {
			return errors.NewIOError(errors.ErrCodeFileNotReadable, fmt.Sprintf("Invalid input file %s", path), err)
		}
		content, err = fp.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("%s is not valid JSON", path), err)
	}
	return nil
}
