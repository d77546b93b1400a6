// Package bundle persists a trained pipeline as a directory holding
// meta.yaml and a SQLite parameter database.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/lexicon"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ner"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
	"github.com/cognicore/shopnlp/pkg/shopnlp/senter"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store/sqlite"
	"github.com/cognicore/shopnlp/pkg/shopnlp/textcat"
)

const (
	MetaFile   = "meta.yaml"
	ParamsFile = "params.db"

	// FormatVersion is bumped on incompatible layout changes.
	FormatVersion = 1
)

// Meta describes a bundle.
type Meta struct {
	ID        string        `yaml:"id"`
	Format    int           `yaml:"format"`
	CreatedAt time.Time     `yaml:"created_at"`
	Tokenizer TokenizerMeta `yaml:"tokenizer"`
	Stages    []StageMeta   `yaml:"stages"`
}

// TokenizerMeta is what it takes to rebuild the shared tokenizer.
type TokenizerMeta struct {
	Stopwords []string        `yaml:"stopwords"`
	Lexicon   []lexicon.Group `yaml:"lexicon,omitempty"`
}

// StageMeta is one stage in run order. Labels are in class order.
type StageMeta struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Labels []string `yaml:"labels,omitempty"`
}

// Save writes p to dir, replacing any bundle already there. runs are
// recorded in the parameter database.
func Save(ctx context.Context, dir string, p *pipeline.Pipeline, runs ...store.Run) (*Meta, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for _, name := range []string{ParamsFile, ParamsFile + "-wal", ParamsFile + "-shm"} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	st, err := sqlite.OpenSQLite(ctx, filepath.Join(dir, ParamsFile))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	meta := &Meta{
		ID:        ulid.Make().String(),
		Format:    FormatVersion,
		CreatedAt: time.Now().UTC(),
		Tokenizer: tokenizerMeta(p.Tokenizer()),
	}
	meta.Stages, err = Encode(ctx, st, p)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if err := st.AddRun(ctx, r); err != nil {
			return nil, err
		}
	}
	if err := st.Close(); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644); err != nil {
		return nil, err
	}
	return meta, nil
}

// ReadMeta reads a bundle's meta.yaml.
func ReadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("bundle %s: %w", dir, internalerr.ErrNotFound)
		}
		return nil, err
	}
	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", dir, err)
	}
	if meta.Format != FormatVersion {
		return nil, fmt.Errorf("bundle %s: format %d, want %d: %w", dir, meta.Format, FormatVersion, internalerr.ErrInvalidConfig)
	}
	return &meta, nil
}

// Load rebuilds the pipeline saved in dir.
func Load(ctx context.Context, dir string, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	meta, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, ParamsFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("bundle %s: %w: %w", dir, internalerr.ErrNotFound, err)
	}
	st, err := sqlite.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return Decode(ctx, st, meta, opts...)
}

// Runs returns the training history stored in dir.
func Runs(ctx context.Context, dir string) ([]store.Run, error) {
	if _, err := ReadMeta(dir); err != nil {
		return nil, err
	}
	st, err := sqlite.OpenSQLite(ctx, filepath.Join(dir, ParamsFile))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Runs(ctx)
}

// Encode writes the parameters of every trainable stage of p to st and
// returns the stage descriptions.
func Encode(ctx context.Context, st store.Store, p *pipeline.Pipeline) ([]StageMeta, error) {
	var out []StageMeta
	for _, s := range p.Stages() {
		sm := StageMeta{Name: s.Name(), Kind: s.Kind().String()}
		switch s.(type) {
		case *ner.Recognizer, *textcat.Classifier, *senter.Sentencizer:
		default:
			return nil, fmt.Errorf("stage %s: type %T cannot be saved: %w", s.Name(), s, internalerr.ErrInvalidInput)
		}
		if tr, ok := s.(pipeline.Trainable); ok {
			sm.Labels = tr.Labels()
			if err := st.ReplaceParams(ctx, s.Name(), tr.Params()); err != nil {
				return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
			}
		}
		out = append(out, sm)
	}
	return out, nil
}

// Decode rebuilds a pipeline from meta and the parameters in st.
func Decode(ctx context.Context, st store.Store, meta *Meta, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	tok := ingest.NewTokenizer(meta.Tokenizer.Stopwords)
	if len(meta.Tokenizer.Lexicon) > 0 {
		lex := lexicon.New()
		for _, g := range meta.Tokenizer.Lexicon {
			lex.AddGroup(g.Canonical, g.Variants)
		}
		tok.SetLexicon(lex)
	}

	p := pipeline.New(tok, opts...)
	for _, sm := range meta.Stages {
		s, err := newStage(sm)
		if err != nil {
			return nil, err
		}
		if tr, ok := s.(pipeline.Trainable); ok {
			params, err := st.Params(ctx, sm.Name)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", sm.Name, err)
			}
			if err := tr.SetParams(params); err != nil {
				return nil, fmt.Errorf("stage %s: %w", sm.Name, err)
			}
		}
		if err := p.Add(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newStage(sm StageMeta) (pipeline.Stage, error) {
	kind, err := pipeline.ParseKind(sm.Kind)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", sm.Name, err)
	}

	var tr pipeline.Trainable
	switch kind {
	case pipeline.KindSentencizer:
		return senter.New(sm.Name), nil
	case pipeline.KindEntityRecognizer:
		tr = ner.New(sm.Name)
	case pipeline.KindTextClassifier:
		tr = textcat.New(sm.Name)
	default:
		return nil, fmt.Errorf("stage %s: no implementation for kind %s: %w", sm.Name, kind, internalerr.ErrInvalidConfig)
	}

	for _, l := range sm.Labels {
		if _, err := tr.AddLabel(l); err != nil {
			return nil, fmt.Errorf("stage %s: %w", sm.Name, err)
		}
	}
	if err := tr.Begin(); err != nil {
		return nil, fmt.Errorf("stage %s: %w", sm.Name, err)
	}
	return tr, nil
}

func tokenizerMeta(tok *ingest.Tokenizer) TokenizerMeta {
	tm := TokenizerMeta{Stopwords: tok.Stopwords()}
	if lex := tok.Lexicon(); lex != nil {
		tm.Lexicon = lex.Groups()
	}
	return tm
}
