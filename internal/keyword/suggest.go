package keyword

import (
	"sort"
	"strings"
	"unicode"
)

// Suggester proposes a corrected query from the session's own vocabulary.
type Suggester struct {
	dictionary  TermDictionary
	maxDistance int
	minFreq     int
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithMaxDistance sets the maximum edit distance for a correction.
func WithMaxDistance(d int) SuggesterOption {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores terms found in fewer documents.
func WithMinFrequency(f int) SuggesterOption {
	return func(s *Suggester) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// NewSuggester creates a Suggester over dict.
func NewSuggester(dict TermDictionary, opts ...SuggesterOption) *Suggester {
	s := &Suggester{dictionary: dict, maxDistance: 2, minFreq: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest returns the query with unknown terms replaced by their closest indexed term.
// ok is false when every term is known or nothing close exists.
func (s *Suggester) Suggest(query string) (corrected string, ok bool, err error) {
	terms, err := s.dictionary.Terms()
	if err != nil {
		return "", false, err
	}
	words := queryTerms(query)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w
		if _, known := terms[w]; known {
			continue
		}
		if best, found := s.closest(w, terms); found {
			out[i] = best
			ok = true
		}
	}
	if !ok {
		return query, false, nil
	}
	return strings.Join(out, " "), true, nil
}

type candidate struct {
	term     string
	distance int
	freq     int
}

func (s *Suggester) closest(word string, terms map[string]int) (string, bool) {
	var found []candidate
	wordLen := len([]rune(word))
	for term, freq := range terms {
		if freq < s.minFreq {
			continue
		}
		diff := len([]rune(term)) - wordLen
		if diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		if d := EditDistance(word, term); d <= s.maxDistance {
			found = append(found, candidate{term: term, distance: d, freq: freq})
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		if found[i].freq != found[j].freq {
			return found[i].freq > found[j].freq
		}
		return found[i].term < found[j].term
	})
	return found[0].term, true
}

// queryTerms lowercases query and splits it on anything that is not a letter or digit,
// roughly as the standard analyzer tokenizes.
func queryTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// EditDistance is the Damerau-Levenshtein distance (optimal string alignment) between a and b, by rune.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = minInt(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = minInt(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(ra)][len(rb)]
}

func minInt(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
