package pipeline

import (
	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
)

// TokenInfo is the per-token view of a Document.
type TokenInfo struct {
	Text   string `json:"text"`
	Lemma  string `json:"lemma"`
	POS    string `json:"pos"`
	Tag    string `json:"tag"`
	Dep    string `json:"dep"`
	IsStop bool   `json:"is_stop"`
}

// Entity is a recognized span with character offsets into the input.
type Entity struct {
	Text      string `json:"text"`
	Label     string `json:"label"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Dep is one dependency edge.
type Dep struct {
	Token string `json:"token"`
	Head  string `json:"head"`
	Dep   string `json:"dep"`
}

// Document is the unified annotation of one input text. Every
// enrichment is present; unavailable ones hold their documented default.
type Document struct {
	Text       string         `json:"-"`
	Tokens     []TokenInfo    `json:"tokens"`
	Entities   []Entity       `json:"entities"`
	NounChunks []string       `json:"noun_chunks"`
	Sentences  []string       `json:"sentences"`
	Deps       []Dep          `json:"deps"`
	Cats       []ingest.Score `json:"cats,omitempty"`
}

// Annotate runs the pipeline over text and assembles a Document.
//
// Each enrichment is gated by its capability: without an entity
// recognizer there are no entities; without sentence boundaries the whole
// text is the one sentence; without a parser there are no noun chunks and
// no deps. An enrichment that fails degrades the same way.
func (p *Pipeline) Annotate(text string) *Document {
	doc := p.Run(text)

	out := &Document{
		Text:       text,
		Tokens:     make([]TokenInfo, len(doc.Tokens)),
		Entities:   []Entity{},
		NounChunks: []string{},
		Sentences:  []string{text},
		Deps:       []Dep{},
	}

	for i, tok := range doc.Tokens {
		out.Tokens[i] = TokenInfo{
			Text:   tok.Text,
			Lemma:  tok.Lemma,
			POS:    tok.POS,
			Tag:    tok.Tag,
			Dep:    tok.Dep,
			IsStop: tok.IsStop,
		}
	}

	if p.HasEntityRecognizer() {
		p.enrich("entities", func() { out.Entities = entities(doc) })
	}
	if p.HasSentenceBoundaries() {
		p.enrich("sentences", func() {
			if sents := sentences(doc); len(sents) > 0 {
				out.Sentences = sents
			}
		})
		p.enrich("noun_chunks", func() { out.NounChunks = nounChunks(doc) })
	}
	if p.HasParser() {
		p.enrich("deps", func() { out.Deps = deps(doc) })
	}
	if p.HasTextClassifier() && len(doc.Cats) > 0 {
		out.Cats = append([]ingest.Score(nil), doc.Cats...)
	}
	return out
}

// enrich runs fill, swallowing a panic so the field keeps its default.
func (p *Pipeline) enrich(field string, fill func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("enrichment degraded", zap.String("field", field), zap.Any("panic", r))
		}
	}()
	fill()
}

func entities(doc *ingest.Doc) []Entity {
	out := make([]Entity, 0, len(doc.Ents))
	for _, span := range doc.Ents {
		start, end := doc.Chars(span)
		out = append(out, Entity{
			Text:      doc.SpanText(span),
			Label:     span.Label,
			StartChar: start,
			EndChar:   end,
		})
	}
	return out
}

func sentences(doc *ingest.Doc) []string {
	spans, err := doc.Sents()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, doc.SpanText(s))
	}
	return out
}

func nounChunks(doc *ingest.Doc) []string {
	spans, err := doc.NounChunks()
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, doc.SpanText(s))
	}
	return out
}

func deps(doc *ingest.Doc) []Dep {
	if !doc.IsParsed() {
		return []Dep{}
	}
	out := make([]Dep, 0, len(doc.Tokens))
	for _, tok := range doc.Tokens {
		out = append(out, Dep{
			Token: tok.Text,
			Head:  doc.Tokens[tok.Head].Text,
			Dep:   tok.Dep,
		})
	}
	return out
}
