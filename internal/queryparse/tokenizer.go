package queryparse

import (
	"strings"

	"github.com/trialmatch/go-match-engine/model"
)

// TokenKind classifies a query token.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenInt
	TokenComparator
	TokenAge
	TokenSex
	TokenTargetMarker
	TokenExclusionMarker
)

// Token is one lexical unit of a match query. Text keeps the original
// spelling for words so indication terms survive with their casing;
// comparators are normalized.
type Token struct {
	Kind TokenKind
	Text string
	Sex  model.Sex // set when Kind is TokenSex
}

// Tokenize converts a free-text query into a token stream. Fields are split
// on whitespace, marker prefixes ("Target:", "EXCLUSION:") and comparator
// runs are separated even when glued to their neighbors, and each piece is
// classified.
func Tokenize(query string) []Token {
	tokens := make([]Token, 0)
	for _, field := range strings.Fields(query) {
		for _, piece := range splitField(field) {
			tokens = append(tokens, classify(piece))
		}
	}
	return tokens
}

var markers = []string{"target:", "exclusion:"}

// splitField peels a leading clause marker off a field and then splits the
// remainder around comparator runs, so "Target:ADHD" and "age>=18" tokenize
// the same as their spaced-out forms.
func splitField(field string) []string {
	lower := strings.ToLower(field)
	for _, marker := range markers {
		if strings.HasPrefix(lower, marker) {
			pieces := []string{field[:len(marker)]}
			if rest := field[len(marker):]; rest != "" {
				pieces = append(pieces, splitComparators(rest)...)
			}
			return pieces
		}
	}
	return splitComparators(field)
}

func isComparatorChar(r rune) bool {
	return r == '<' || r == '>' || r == '='
}

// splitComparators partitions a string into maximal runs of comparator
// characters and non-comparator characters, in order.
func splitComparators(s string) []string {
	if s == "" {
		return nil
	}
	pieces := make([]string, 0, 1)
	start := 0
	inComparator := false
	for i, r := range s {
		c := isComparatorChar(r)
		if i == 0 {
			inComparator = c
			continue
		}
		if c != inComparator {
			pieces = append(pieces, s[start:i])
			start = i
			inComparator = c
		}
	}
	return append(pieces, s[start:])
}

func classify(piece string) Token {
	switch lower := strings.ToLower(piece); lower {
	case "target:":
		return Token{Kind: TokenTargetMarker, Text: piece}
	case "exclusion:":
		return Token{Kind: TokenExclusionMarker, Text: piece}
	case "age":
		return Token{Kind: TokenAge, Text: piece}
	case "male", "m":
		return Token{Kind: TokenSex, Text: piece, Sex: model.SexMale}
	case "female", "f":
		return Token{Kind: TokenSex, Text: piece, Sex: model.SexFemale}
	case ">=", "<=", ">", "<", "=":
		return Token{Kind: TokenComparator, Text: lower}
	}
	if isAllDigits(piece) {
		return Token{Kind: TokenInt, Text: piece}
	}
	return Token{Kind: TokenWord, Text: piece}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
