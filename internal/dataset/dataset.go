// Package dataset loads JSON-lines exemplar files.
//
// Each non-blank line is one exemplar:
//
//	{"id": "a1", "source": "sensor-3", "features": [0.1, 2.5], "label": 1, "dataset": "iris"}
//
// Lines without an id are numbered by line; lines without a dataset take the file's base name.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/tangle/pkg/tpg"
)

// maxLine bounds a single JSON line
const maxLine = 16 << 20

// Dataset is an in-memory, restartable exemplar source.
type Dataset struct {
	Name      string
	exemplars []tpg.Exemplar
}

// Load reads a JSON-lines file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(f, name)
}

// Parse reads JSON-lines exemplars from r. A malformed line is an error naming
// its line number. Well-formed exemplars are kept even when they would fail
// tpg.Exemplar.Validate; the trainer rejects those one by one.
func Parse(r io.Reader, name string) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	d := &Dataset{Name: name}
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ex tpg.Exemplar
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ex); err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", name, line, err)
		}
		if ex.ID == "" {
			ex.ID = strconv.Itoa(line)
		}
		if ex.Dataset == "" {
			ex.Dataset = name
		}
		d.exemplars = append(d.exemplars, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset %s: failed to read: %w", name, err)
	}
	if len(d.exemplars) == 0 {
		return nil, fmt.Errorf("dataset %s has no exemplars", name)
	}
	return d, nil
}

// Exemplars returns every exemplar from the start. Implements tpg.Source.
func (d *Dataset) Exemplars(ctx context.Context) ([]tpg.Exemplar, error) {
	return tpg.SliceSource(d.exemplars).Exemplars(ctx)
}

// Len returns the number of exemplars.
func (d *Dataset) Len() int { return len(d.exemplars) }

// Labels returns the distinct exemplar labels, ascending.
func (d *Dataset) Labels() []int64 {
	seen := make(map[int64]bool)
	var labels []int64
	for _, ex := range d.exemplars {
		if !seen[ex.Label] {
			seen[ex.Label] = true
			labels = append(labels, ex.Label)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
