package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Kind classifies an entry for layout purposes.
type Kind int

const (
	KindRegular Kind = iota
	KindBreak
	KindLunch
)

func (k Kind) String() string {
	switch k {
	case KindBreak:
		return "break"
	case KindLunch:
		return "lunch"
	default:
		return "regular"
	}
}

// NonInstructional reports whether k is a break or lunch period.
func (k Kind) NonInstructional() bool {
	return k == KindBreak || k == KindLunch
}

// ParseKind parses the String form of a Kind. The empty string is Regular.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular":
		return KindRegular, nil
	case "break":
		return KindBreak, nil
	case "lunch":
		return KindLunch, nil
	default:
		return KindRegular, fmt.Errorf("model: unknown kind %q", s)
	}
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var (
	lunchWords = map[string]bool{"lunch": true, "lunchtime": true}
	breakWords = map[string]bool{"break": true, "breaks": true, "recess": true, "pause": true}
)

// ClassifyKind resolves the kind of an upstream entry. An explicit period
// type wins; otherwise the title is searched for break/lunch keywords as
// whole words, so "Breakfast club" stays regular.
func ClassifyKind(periodType, title string) Kind {
	switch strings.ToUpper(strings.TrimSpace(periodType)) {
	case "BREAK":
		return KindBreak
	case "LUNCH":
		return KindLunch
	case "REGULAR", "LESSON", "CLASS":
		return KindRegular
	}

	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if slices.ContainsFunc(words, func(w string) bool { return lunchWords[w] }) {
		return KindLunch
	}
	if slices.ContainsFunc(words, func(w string) bool { return breakWords[w] }) {
		return KindBreak
	}
	return KindRegular
}
