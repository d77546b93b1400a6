package ingest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/cognicore/shopnlp/pkg/shopnlp/lexicon"
)

// DefaultStopwords is the English stopword list used when no stoplist file is configured.
var DefaultStopwords = []string{
	"a", "an", "and", "any", "are", "as", "at", "be", "but", "by", "can", "do", "does",
	"for", "from", "have", "i", "in", "is", "it", "me", "my", "of", "on", "or",
	"some", "that", "the", "there", "this", "to", "was", "what", "with", "you", "your",
}

// Tokenizer splits text into offset-preserving tokens.
//
// A token is a maximal run of letters and digits. A hyphen joins two word
// runs ("t-shirt"); '.' and ',' join two digit runs ("9.99", "1,000").
// Any other non-space rune is a single punctuation token.
type Tokenizer struct {
	stopwords map[string]struct{}
	lexicon   *lexicon.Lexicon // Optional: lemma source
}

// NewTokenizer creates a new tokenizer with the given stopword list
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// SetLexicon assigns a lexicon used to fill token lemmas.
func (t *Tokenizer) SetLexicon(lex *lexicon.Lexicon) {
	t.lexicon = lex
}

// Lexicon returns the lemma lexicon, or nil.
func (t *Tokenizer) Lexicon() *lexicon.Lexicon {
	return t.lexicon
}

// Stopwords returns the stopword list, sorted.
func (t *Tokenizer) Stopwords() []string {
	out := make([]string, 0, len(t.stopwords))
	for w := range t.stopwords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// MakeDoc tokenizes text into a Doc with no annotations beyond the tokens.
func (t *Tokenizer) MakeDoc(text string) *Doc {
	runes := []rune(text)
	doc := &Doc{Text: text, runes: runes}

	n := len(runes)
	for i := 0; i < n; {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}

		j := i + 1
		if isWordRune(r) {
			for j < n {
				if isWordRune(runes[j]) {
					j++
					continue
				}
				if j+1 < n && joins(runes[j-1], runes[j], runes[j+1]) {
					j += 2
					continue
				}
				break
			}
		}

		doc.Tokens = append(doc.Tokens, t.newToken(runes[i:j], i, j))
		i = j
	}

	return doc
}

func (t *Tokenizer) newToken(rs []rune, start, end int) Token {
	text := string(rs)
	lower := strings.ToLower(text)
	tok := Token{
		Text:    text,
		Lower:   lower,
		Lemma:   lower,
		Start:   start,
		End:     end,
		IsPunct: len(rs) == 1 && !isWordRune(rs[0]),
		LikeNum: likeNum(rs),
		Head:    -1,
	}
	if t.lexicon != nil {
		tok.Lemma = t.lexicon.Lemma(lower)
	}
	_, tok.IsStop = t.stopwords[lower]
	return tok
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// joins reports whether mid glues prev and next into one token.
func joins(prev, mid, next rune) bool {
	switch mid {
	case '-':
		return isWordRune(prev) && isWordRune(next)
	case '.', ',':
		return unicode.IsDigit(prev) && unicode.IsDigit(next)
	}
	return false
}

func likeNum(rs []rune) bool {
	digits := 0
	for _, r := range rs {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
