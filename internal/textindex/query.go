package textindex

import (
	"errors"
	"strings"
	"unicode"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// queryTerm is one parsed clause of a user query.
type queryTerm struct {
	field  string // empty means any searchable column
	tokens []string
	phrase bool
	negate bool
}

// parseQuery splits a user search string into clauses.
//
// Grammar:
//
//	word          prefix match against every searchable column
//	"two words"   phrase match
//	field:word    prefix match restricted to one searchable column
//	-word         exclude documents matching word
//
// A prefix that is not a searchable column ("localhost:8080",
// "about:blank") is part of the word.
func parseQuery(input string, schema Schema) ([]queryTerm, error) {
	var terms []queryTerm
	rs := []rune(input)
	i := 0
	for i < len(rs) {
		if unicode.IsSpace(rs[i]) {
			i++
			continue
		}

		var t queryTerm
		if rs[i] == '-' {
			t.negate = true
			i++
		}

		j := i
		for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
			j++
		}
		if j > i && j < len(rs) && rs[j] == ':' && schema.isSearchable(string(rs[i:j])) {
			t.field = string(rs[i:j])
			i = j + 1
		}

		var text string
		if i < len(rs) && rs[i] == '"' {
			end := i + 1
			for end < len(rs) && rs[end] != '"' {
				end++
			}
			if end >= len(rs) {
				return nil, coreerr.New(coreerr.ErrQueryParse, "parse query", errors.New("unbalanced quote"))
			}
			text = string(rs[i+1 : end])
			t.phrase = true
			i = end + 1
		} else {
			end := i
			for end < len(rs) && !unicode.IsSpace(rs[end]) {
				end++
			}
			text = string(rs[i:end])
			i = end
		}

		t.tokens = tokenize(text)
		if len(t.tokens) == 0 {
			continue
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// tokenize splits s the way the unicode61 tokenizer does and folds case,
// so no token can be read as a MATCH operator.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// render writes one clause in FTS4 enhanced query syntax.
func (t queryTerm) render() string {
	if t.field != "" {
		parts := make([]string, len(t.tokens))
		for i, tok := range t.tokens {
			parts[i] = t.field + ":" + tok
			if !t.phrase && i == len(t.tokens)-1 {
				parts[i] += "*"
			}
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	switch {
	case t.phrase:
		return `"` + strings.Join(t.tokens, " ") + `"`
	case len(t.tokens) == 1:
		return t.tokens[0] + "*"
	default:
		return `"` + strings.Join(t.tokens, " ") + `*"`
	}
}

// matchExpr renders parsed clauses as an FTS4 MATCH expression.
// Positive clauses are joined with OR; exclusions follow as NOT clauses.
// It returns "" when there is nothing to match.
func matchExpr(terms []queryTerm) (string, error) {
	var pos, neg []string
	for _, t := range terms {
		if t.negate {
			neg = append(neg, t.render())
		} else {
			pos = append(pos, t.render())
		}
	}
	if len(pos) == 0 {
		if len(neg) > 0 {
			return "", coreerr.New(coreerr.ErrQueryParse, "parse query", errors.New("query has only exclusions"))
		}
		return "", nil
	}

	expr := strings.Join(pos, " OR ")
	if len(pos) > 1 && len(neg) > 0 {
		expr = "(" + expr + ")"
	}
	for _, n := range neg {
		expr += " NOT " + n
	}
	return expr, nil
}
