package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/mchmarny/loanrisk/pkg/pipeline"
)

const (
	PipelineFileName     = "loan_default_lr_pipeline.json"
	MetadataFileName     = "loan_default_lr_metadata.json"
	MetadataYAMLFileName = "loan_default_lr_metadata.yaml"
)

// Candidate is one (pipeline, metadata) file pair relative to the artifact root.
type Candidate struct {
	Dir      string `json:"dir" yaml:"dir"`
	Pipeline string `json:"pipeline" yaml:"pipeline"`
	Metadata string `json:"metadata" yaml:"metadata"`
}

// DefaultCandidates lists the conventional artifact locations in lookup order.
var DefaultCandidates = []Candidate{
	{Dir: "artifacts", Pipeline: PipelineFileName, Metadata: MetadataFileName},
	{Dir: "artifacts", Pipeline: PipelineFileName, Metadata: MetadataYAMLFileName},
	{Dir: "models", Pipeline: PipelineFileName, Metadata: MetadataFileName},
	{Dir: "models", Pipeline: PipelineFileName, Metadata: MetadataYAMLFileName},
	{Dir: "model", Pipeline: PipelineFileName, Metadata: MetadataFileName},
	{Dir: "model", Pipeline: PipelineFileName, Metadata: MetadataYAMLFileName},
	{Dir: ".", Pipeline: PipelineFileName, Metadata: MetadataFileName},
	{Dir: ".", Pipeline: PipelineFileName, Metadata: MetadataYAMLFileName},
}

// Bundle is the loaded, immutable artifact pair.
type Bundle struct {
	Pipeline     *pipeline.Pipeline
	Metadata     Metadata
	PipelinePath string
	MetadataPath string
}

// Attempt records one candidate that was checked and what its directory held.
type Attempt struct {
	Pipeline string
	Metadata string
	Dir      string
	Listing  []string
	ListErr  error
}

// NotFoundError is returned when no candidate pair is fully present.
type NotFoundError struct {
	Root     string
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model artifacts not found under %s; tried:", e.Root)
	listed := make(map[string]bool)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  - %s + %s", a.Pipeline, a.Metadata)
		if listed[a.Dir] {
			continue
		}
		listed[a.Dir] = true
		switch {
		case a.ListErr != nil:
			fmt.Fprintf(&b, "\n    %s: %v", a.Dir, a.ListErr)
		case len(a.Listing) == 0:
			fmt.Fprintf(&b, "\n    %s: (empty)", a.Dir)
		default:
			fmt.Fprintf(&b, "\n    %s contains: %s", a.Dir, strings.Join(a.Listing, ", "))
		}
	}
	return b.String()
}

// Resolve returns the first candidate whose pipeline and metadata files both exist.
func Resolve(root string, candidates []Candidate) (pipelinePath, metadataPath string, err error) {
	if root == "" {
		root = "."
	}
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	nf := &NotFoundError{Root: root}
	for _, c := range candidates {
		dir := filepath.Join(root, c.Dir)
		p := filepath.Join(dir, c.Pipeline)
		m := filepath.Join(dir, c.Metadata)
		if isFile(p) && isFile(m) {
			slog.Debug("artifacts resolved", "pipeline", p, "metadata", m)
			return p, m, nil
		}
		a := Attempt{Pipeline: p, Metadata: m, Dir: dir}
		a.Listing, a.ListErr = listDir(dir)
		nf.Attempts = append(nf.Attempts, a)
	}
	return "", "", nf
}

// Load resolves and loads the first complete candidate pair under root.
func Load(root string, candidates []Candidate) (*Bundle, error) {
	pp, mp, err := Resolve(root, candidates)
	if err != nil {
		return nil, err
	}

	meta, err := ReadMetadata(mp)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.Load(pp)
	if err != nil {
		return nil, err
	}

	if err := checkFeatures("numeric", meta.NumericFeatures, p.NumericFeatures()); err != nil {
		return nil, err
	}
	if err := checkFeatures("categorical", meta.CategoricalFeatures, p.CategoricalFeatures()); err != nil {
		return nil, err
	}

	slog.Info("model artifacts loaded",
		"pipeline", pp,
		"metadata", mp,
		"threshold", meta.Threshold,
		"features", len(meta.Features()))

	return &Bundle{
		Pipeline:     p,
		Metadata:     *meta,
		PipelinePath: pp,
		MetadataPath: mp,
	}, nil
}

// Cache loads the bundle at most once per process.
type Cache struct {
	root       string
	candidates []Candidate

	once   sync.Once
	bundle *Bundle
	err    error
}

// NewCache creates a lazily populated bundle cache.
func NewCache(root string, candidates ...Candidate) *Cache {
	return &Cache{root: root, candidates: candidates}
}

// Get returns the cached bundle, loading it on first use.
// A failed load is cached as well.
func (c *Cache) Get() (*Bundle, error) {
	c.once.Do(func() {
		c.bundle, c.err = Load(c.root, c.candidates)
	})
	return c.bundle, c.err
}

func checkFeatures(kind string, meta, pipe []string) error {
	if !slices.Equal(meta, pipe) {
		return fmt.Errorf("%s features in metadata %v do not match pipeline %v", kind, meta, pipe)
	}
	return nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("directory does not exist")
		}
		return nil, err
	}
	list := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			n += "/"
		}
		list = append(list, n)
	}
	return list, nil
}
