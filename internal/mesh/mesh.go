// Package mesh derives publication type ancestry from the NLM MeSH
// descriptor file (desc<year>.gz).
package mesh

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// publicationTypeClass is the DescriptorClass of publication type records.
const publicationTypeClass = "2"

var (
	ErrDuplicateTreeNumber = errors.New("tree number appears twice")
	ErrMissingAncestor     = errors.New("ancestor tree number not found")
)

type descriptorRecord struct {
	Class       string   `xml:"DescriptorClass,attr"`
	Name        string   `xml:"DescriptorName>String"`
	TreeNumbers []string `xml:"TreeNumberList>TreeNumber"`
}

// Ancestors maps each publication type name, lowercased, to the sorted
// names of every type above it in the MeSH tree.
type Ancestors map[string][]string

// Parse reads an uncompressed descriptor file and computes the ancestry
// of every publication type in it.
func Parse(r io.Reader) (Ancestors, error) {
	numbers := make(map[string]string) // tree number -> name
	names := make(map[string][]string) // name -> tree numbers

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptors: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "DescriptorRecord" {
			continue
		}
		var rec descriptorRecord
		if err := dec.DecodeElement(&rec, &start); err != nil {
			return nil, fmt.Errorf("failed to read descriptor: %w", err)
		}
		if rec.Class != publicationTypeClass {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(rec.Name))
		for _, n := range rec.TreeNumbers {
			if other, dup := numbers[n]; dup {
				return nil, fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateTreeNumber, n, rec.Name, other)
			}
			numbers[n] = name
			names[name] = append(names[name], n)
		}
	}

	out := make(Ancestors, len(names))
	for name, treeNumbers := range names {
		seen := make(map[string]bool)
		ancestors := []string{}
		for _, n := range treeNumbers {
			pieces := strings.Split(n, ".")
			for depth := 1; depth < len(pieces); depth++ {
				prefix := strings.Join(pieces[:depth], ".")
				ancestor, ok := numbers[prefix]
				if !ok {
					return nil, fmt.Errorf("%w: %s (parent of %s)", ErrMissingAncestor, prefix, n)
				}
				if !seen[ancestor] {
					seen[ancestor] = true
					ancestors = append(ancestors, ancestor)
				}
			}
		}
		sort.Strings(ancestors)
		out[name] = ancestors
	}
	return out, nil
}

// ParseFile reads a gzipped descriptor file.
func ParseFile(path string) (Ancestors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer zr.Close()
	return Parse(zr)
}

// Save writes the ancestry as indented JSON with names in sorted order,
// ready to be stored as the pubtype-ancestors config value.
func (a Ancestors) Save(path string) error {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
