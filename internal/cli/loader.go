package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/eca/internal/compiler"
)

// LoadMode controls how errors are handled during model loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the models read from a file or directory.
type LoadResult struct {
	Models    []compiler.RawModel
	Files     map[string]string // model id -> file it was defined in
	FileCount int               // Number of model files read
}

// LoadError represents an error that occurred during model loading.
type LoadError struct {
	Code    string
	File    string
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Code, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModels parses every model file at path. path may be a single file
// or a directory walked recursively for *.yaml, *.yml, *.json and *.cue.
// Files are read in lexical order and a model id may be defined once.
func LoadModels(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindModelFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no model files found in %s", path)}}
		}
	}

	result := &LoadResult{
		Files:     make(map[string]string),
		FileCount: len(files),
	}
	var errs []error
	for _, file := range files {
		models, err := compiler.ParseFile(file)
		if err != nil {
			errs = append(errs, convertParseError(file, err))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		for _, m := range models {
			if prev, dup := result.Files[m.ID]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeDuplicate,
					File:    file,
					Message: fmt.Sprintf("model %q already defined in %s", m.ID, prev),
				})
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Files[m.ID] = file
			result.Models = append(result.Models, m)
		}
	}

	if len(result.Models) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no models defined in %s", path)})
	}
	return result, errs
}

// FindModelFiles walks dir and returns the supported model files, sorted.
func FindModelFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && compiler.SupportedExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertParseError keeps the CUE source line when there is one.
func convertParseError(file string, err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		le := &LoadError{Code: ErrCodeParseFailed, File: file, Message: compileErr.Message}
		if compileErr.Pos.IsValid() {
			le.Line = compileErr.Pos.Line()
		}
		return le
	}
	return &LoadError{Code: ErrCodeParseFailed, File: file, Message: err.Error()}
}

// firstLoadError formats the first error for Fail.
func firstLoadError(errs []error) (string, string) {
	var le *LoadError
	if errors.As(errs[0], &le) {
		if le.File != "" {
			return le.Code, fmt.Sprintf("%s: %s", le.File, le.Message)
		}
		return le.Code, le.Message
	}
	return ErrCodeGeneric, errs[0].Error()
}
