// Package emit serializes descriptor sets to their on-disk document
// form and parses them back. Emission is all-or-nothing: the document
// is staged next to the destination and renamed into place, so a
// failed run never leaves a partial or corrupt file behind.
package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"symtrace/internal/descriptor"
)

// DocumentVersion is the schema version stamped into every emitted
// document. Parsing rejects any other version.
const DocumentVersion = 1

type documentJSON struct {
	Version int          `json:"version"`
	Symbols []symbolJSON `json:"symbols"`
}

type symbolJSON struct {
	Symbol  string       `json:"symbol"`
	Members []memberJSON `json:"members,omitempty"`
}

// memberJSON keeps the unrecorded-vs-empty signature distinction: a nil
// pointer omits parameterTypes, an empty slice emits [].
type memberJSON struct {
	Name   string    `json:"name,omitempty"`
	Params *[]string `json:"parameterTypes,omitempty"`
}

// Encode renders the canonical document bytes: 2-space indent, symbols
// and members in set order, trailing newline. Equal sets encode to
// identical bytes, which keeps emitted documents diff-friendly.
func Encode(set *descriptor.Set) ([]byte, error) {
	doc := documentJSON{
		Version: DocumentVersion,
		Symbols: make([]symbolJSON, 0, set.Len()),
	}
	for _, d := range set.Descriptors() {
		sj := symbolJSON{Symbol: d.Symbol}
		for _, m := range d.Members() {
			mj := memberJSON{Name: m.Name}
			if m.Params != nil {
				params := m.Params
				mj.Params = &params
			}
			sj.Members = append(sj.Members, mj)
		}
		doc.Symbols = append(doc.Symbols, sj)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor document: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseSet reads a descriptor document. Entries are canonicalized
// (re-sorted) on load, so hand-edited files stay mergeable; a repeated
// symbol surfaces descriptor.ErrDuplicateSymbol.
func ParseSet(data []byte) (*descriptor.Set, error) {
	var doc documentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing descriptor document: %w", err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("descriptor document version %d not supported (want %d)", doc.Version, DocumentVersion)
	}

	entries := doc.Symbols
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })

	set := descriptor.NewSet()
	for _, sj := range entries {
		if sj.Symbol == "" {
			return nil, fmt.Errorf("descriptor document: symbol entry with empty name")
		}
		d := descriptor.NewDescriptor(sj.Symbol)
		for _, mj := range sj.Members {
			if mj.Name == "" && mj.Params == nil {
				return nil, fmt.Errorf("descriptor document: symbol %s: member with neither name nor parameter types", sj.Symbol)
			}
			m := descriptor.Member{Name: mj.Name}
			if mj.Params != nil {
				m.Params = *mj.Params
			}
			d.AddMember(m)
		}
		if err := set.Insert(d); err != nil {
			return nil, fmt.Errorf("descriptor document: %w", err)
		}
	}
	return set, nil
}

// Load reads and parses a descriptor document from disk.
func Load(path string) (*descriptor.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor file: %w", err)
	}
	set, err := ParseSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// WriteOptions controls emission.
type WriteOptions struct {
	Verify bool        // re-parse the staged file and compare before rename
	Mode   os.FileMode // output file mode, 0644 when zero
}

// WriteFile emits the set to path atomically: the document is written
// to a staging file in the destination directory, optionally verified,
// then renamed into place. On any failure the staging file is removed
// and an existing destination file is left untouched.
func WriteFile(set *descriptor.Set, path string, opts WriteOptions) error {
	data, err := Encode(set)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	mode := opts.Mode
	if mode == 0 {
		mode = 0o644
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return fmt.Errorf("writing descriptor file: %w", err)
	}
	if opts.Verify {
		if err := verifyFile(tmpPath, set); err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming descriptor file into place: %w", err)
	}
	return nil
}

// verifyFile re-reads a freshly staged document and compares it to the
// in-memory set before the rename makes it visible.
func verifyFile(path string, want *descriptor.Set) error {
	got, err := Load(path)
	if err != nil {
		return fmt.Errorf("verifying emitted document: %w", err)
	}
	if !got.Equal(want) {
		return fmt.Errorf("verifying emitted document: parsed contents differ from emitted set")
	}
	return nil
}
