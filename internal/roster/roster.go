// Package roster holds the static registry of known cats and their
// reference images. The roster is loaded once at startup and read-only
// for the life of the process.
package roster

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meowtion/sensor/internal/imaging"
)

// Cat is one known cat: a stable user-facing name and an ordered set of
// reference image sources.
type Cat struct {
	Name   string
	Images []imaging.Source
}

// Roster is the immutable, ordered list of known cats. Registration order
// is significant: it breaks similarity ties during match aggregation.
type Roster struct {
	cats []Cat
}

// New validates the given cats and builds a Roster. Each cat needs at
// least one reference image and names must be unique ignoring case.
func New(cats []Cat) (*Roster, error) {
	if len(cats) == 0 {
		return nil, fmt.Errorf("roster: no cats configured")
	}
	seen := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("roster: cat with empty name")
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			return nil, fmt.Errorf("roster: duplicate cat name %q", c.Name)
		}
		seen[lower] = struct{}{}
		if len(c.Images) == 0 {
			return nil, fmt.Errorf("roster: cat %q has no reference images", c.Name)
		}
	}
	out := make([]Cat, len(cats))
	copy(out, cats)
	return &Roster{cats: out}, nil
}

// Entry is the configuration shape of one roster cat. Each image is either
// an absolute http(s) URL or a file name resolved against the assets dir.
type Entry struct {
	Name   string   `yaml:"name"`
	Images []string `yaml:"images"`
}

// FromEntries resolves configuration entries into a validated Roster.
func FromEntries(assetsDir string, entries []Entry) (*Roster, error) {
	cats := make([]Cat, 0, len(entries))
	for _, e := range entries {
		srcs := make([]imaging.Source, 0, len(e.Images))
		for _, ref := range e.Images {
			if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
				srcs = append(srcs, imaging.URLSource{URL: ref})
			} else {
				srcs = append(srcs, imaging.FileSource{Path: filepath.Join(assetsDir, ref)})
			}
		}
		cats = append(cats, Cat{Name: e.Name, Images: srcs})
	}
	return New(cats)
}

// Cats returns the cats in registration order. Callers must not mutate
// the returned slice.
func (r *Roster) Cats() []Cat {
	return r.cats
}

// Len returns the number of known cats.
func (r *Roster) Len() int {
	return len(r.cats)
}

// Find returns the cat with the given name, matched case-insensitively.
func (r *Roster) Find(name string) (Cat, bool) {
	for _, c := range r.cats {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Cat{}, false
}
