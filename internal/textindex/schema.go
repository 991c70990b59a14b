package textindex

import (
	"fmt"
	"strings"
)

// Field declares one document field.
type Field struct {
	Name string

	// Searchable fields are tokenized into the full-text table. Other fields
	// are not indexed.
	Searchable bool

	// Weight scales the field's contribution to relevance. Zero means 1.
	Weight float64
}

// Schema describes the documents of one index.
type Schema struct {
	// Name labels the index in logs and metrics.
	Name string

	// KeyField holds the exact primary key of the mirrored record.
	KeyField string

	// KeyIsSearchable also tokenizes the key (bookmark URLs are searchable).
	KeyIsSearchable bool

	// SortField is the field whose integer value breaks relevance ties,
	// larger first. May be empty.
	SortField string

	Fields []Field
}

// searchableColumns returns the full-text columns in declaration order.
func (s Schema) searchableColumns() []string {
	var cols []string
	if s.KeyIsSearchable {
		cols = append(cols, s.KeyField)
	}
	for _, f := range s.Fields {
		if f.Searchable {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

func (s Schema) isSearchable(name string) bool {
	for _, c := range s.searchableColumns() {
		if c == name {
			return true
		}
	}
	return false
}

func (s Schema) hasField(name string) bool {
	if name == s.KeyField || name == s.SortField {
		return true
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// columnWeights returns one weight per searchable column.
func (s Schema) columnWeights() []float64 {
	var ws []float64
	if s.KeyIsSearchable {
		ws = append(ws, 1)
	}
	for _, f := range s.Fields {
		if !f.Searchable {
			continue
		}
		w := f.Weight
		if w <= 0 {
			w = 1
		}
		ws = append(ws, w)
	}
	return ws
}

// fingerprint identifies the on-disk layout produced by this schema.
func (s Schema) fingerprint() string {
	return fmt.Sprintf("%s|key=%s|sort=%s|fts=%s", s.Name, s.KeyField, s.SortField, strings.Join(s.searchableColumns(), ","))
}

func (s Schema) validate() error {
	if s.Name == "" || s.KeyField == "" {
		return fmt.Errorf("schema needs a name and a key field")
	}
	if len(s.searchableColumns()) == 0 {
		return fmt.Errorf("schema %s has no searchable fields", s.Name)
	}
	for _, c := range s.searchableColumns() {
		if !isIdent(c) {
			return fmt.Errorf("schema %s: invalid column name %q", s.Name, c)
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// MultiValueSeparator joins the values of a multi-valued field (tags).
// The tokenizer treats it as whitespace.
const MultiValueSeparator = "\n"

// Document is one indexable record.
type Document struct {
	Key    string
	Fields map[string]string
	Sort   int64
}

// JoinValues packs several values into one multi-valued field.
func JoinValues(values []string) string {
	return strings.Join(values, MultiValueSeparator)
}

// Hit is one search result: the key of the matching record and its score.
type Hit struct {
	Key   string
	Score float64
}
