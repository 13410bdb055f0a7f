// Package labels - Ordered class vocabularies loaded from label files.
//
// Line order is the index<->label mapping used by every downstream consumer, so
// a Catalog never reorders, deduplicates or synthesizes entries.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ErrEmpty is returned when a label source has no non-blank lines.
var ErrEmpty = errors.New("labels: no labels found")

// Class represents one output class.
type Class struct {
	// The integer index returned by the model.
	Index int `json:"index"`
	// The human-readable label.
	Name string `json:"name"`
}

// Catalog ties a model output vector to its labels.
type Catalog struct {
	classes []Class
}

// New builds a catalog from names in index order.
//
// Arguments:
//   - names: The class names; blank names are rejected.
//
// Returns:
//   - *Catalog: The catalog.
//   - error: An error if names is empty or contains a blank entry.
func New(names ...string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{classes: make([]Class, len(names))}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("labels: blank label at index %d", i)
		}
		c.classes[i] = Class{Index: i, Name: name}
	}
	return c, nil
}

// Parse reads one label per line, trimming whitespace and skipping blank lines.
//
// Arguments:
//   - r: The UTF-8 label source.
//
// Returns:
//   - *Catalog: The catalog in source order.
//   - error: A read error, or ErrEmpty if no labels were found.
func Parse(r io.Reader) (*Catalog, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "labels: scan failed")
	}
	return New(names...)
}

// Load opens path and parses it.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from model configuration
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "labels: open %s", path)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "labels: load %s", path)
	}
	return c, nil
}

// Len returns the number of classes.
func (c *Catalog) Len() int {
	return len(c.classes)
}

// Name returns the class name at idx, or "" when idx is out of range.
//
// The registry checks the catalog length against the model output at load,
// so every index a classifier produces is in range.
func (c *Catalog) Name(idx int) string {
	if idx < 0 || idx >= len(c.classes) {
		return ""
	}
	return c.classes[idx].Name
}

// Names returns a copy of the class names in index order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.classes))
	for i, cls := range c.classes {
		names[i] = cls.Name
	}
	return names
}

// Classes returns a copy of the classes in index order.
func (c *Catalog) Classes() []Class {
	out := make([]Class, len(c.classes))
	copy(out, c.classes)
	return out
}
