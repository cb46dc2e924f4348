package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/opensource-finance/heron/internal/fuzzy"
)

// Reference is a payment reference in its original and derived forms.
// It serializes as the raw string; the derived forms are rebuilt on decode.
type Reference struct {
	Raw    string
	Tokens []string // lower-case, split on anything that is not a letter or digit
	Alnum  string   // letters and digits only, case preserved
}

// NewReference derives tokens and the alphanumeric form from raw.
func NewReference(raw string) Reference {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return Reference{
		Raw:    raw,
		Tokens: tokenize(raw),
		Alnum:  b.String(),
	}
}

func tokenize(s string) []string {
	fields := fuzzy.Tokenize(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// IsEmpty reports whether the reference carries no usable characters.
func (r Reference) IsEmpty() bool {
	return r.Alnum == ""
}

// Cleaned returns the lower-case tokens joined by single spaces.
func (r Reference) Cleaned() string {
	return strings.Join(r.Tokens, " ")
}

// TopTokens returns up to n distinct tokens, preferring longer ones
// (ties alphabetical), sorted alphabetically.
func (r Reference) TopTokens(n int) []string {
	seen := make(map[string]struct{}, len(r.Tokens))
	distinct := make([]string, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		distinct = append(distinct, t)
	}

	sort.Slice(distinct, func(i, j int) bool {
		if len(distinct[i]) != len(distinct[j]) {
			return len(distinct[i]) > len(distinct[j])
		}
		return distinct[i] < distinct[j]
	})
	if len(distinct) > n {
		distinct = distinct[:n]
	}
	sort.Strings(distinct)
	return distinct
}

// MarshalJSON encodes the raw reference.
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Raw)
}

// UnmarshalJSON accepts either a string or an object with a "raw" field.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var obj struct {
			Raw string `json:"raw"`
		}
		if objErr := json.Unmarshal(data, &obj); objErr != nil {
			return err
		}
		raw = obj.Raw
	}
	*r = NewReference(raw)
	return nil
}
