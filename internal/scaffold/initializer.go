// Package scaffold creates a starter tangle project.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tangle/internal/config"
	"github.com/dyluth/tangle/internal/dataset"
	"github.com/dyluth/tangle/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile and DatasetFile are the names written by Initialize.
const (
	ConfigFile  = "tangle.yml"
	DatasetFile = "exemplars.jsonl"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes tangle.yml and a sample dataset into dir and validates
// them by loading both. With force, existing files are replaced.
func Initialize(dir string, force bool) error {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return validateCreatedFiles(dir)
}

// CheckExisting returns an error naming any scaffold file already present in dir.
func CheckExisting(dir string) error {
	var existing []string
	for _, name := range []string{ConfigFile, DatasetFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existing = append(existing, name)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	msg := "project already initialized\n\nFound existing"
	if len(existing) == 1 {
		msg += fmt.Sprintf(": %s\n", existing[0])
	} else {
		msg += " files:\n"
		for _, f := range existing {
			msg += fmt.Sprintf("  - %s\n", f)
		}
	}
	msg += "\nUse 'tangle init --force' to reinitialize (this will overwrite existing configuration)"
	return fmt.Errorf("%s", msg)
}

func getTemplateFiles(dir string) ([]FileInfo, error) {
	templates := []struct {
		src, dst string
	}{
		{"templates/tangle.yml.tmpl", ConfigFile},
		{"templates/exemplars.jsonl.tmpl", DatasetFile},
	}

	files := make([]FileInfo, 0, len(templates))
	for _, t := range templates {
		content, err := templatesFS.ReadFile(t.src)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", t.dst, err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(dir, t.dst),
			Content:     content,
			Permissions: 0644,
		})
	}
	return files, nil
}

// validateCreatedFiles loads the written files the same way tangle train does.
func validateCreatedFiles(dir string) error {
	cfg, err := config.Load(filepath.Join(dir, ConfigFile))
	if err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}

	ds, err := dataset.Load(filepath.Join(dir, cfg.Dataset.Path))
	if err != nil {
		return fmt.Errorf("created %s is invalid: %w", DatasetFile, err)
	}
	if ds.Len() == 0 {
		return fmt.Errorf("created %s has no exemplars", DatasetFile)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(dir string) {
	printer.Success("Successfully initialized tangle project in %s\n", dir)
	printer.Println("\nCreated:")
	printer.Printf("  ✓ %s\n", ConfigFile)
	printer.Printf("  ✓ %s\n", DatasetFile)
	printer.Println("\nNext steps:")
	printer.Println("  1. Replace exemplars.jsonl with your own labelled data")
	printer.Println("  2. Adjust actions.labels and run settings in tangle.yml")
	printer.Println("  3. Run 'tangle train' to evolve a model")
}
