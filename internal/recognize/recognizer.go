// Package recognize matches face embeddings against the enrolled corpus
// using cosine similarity over an in-memory index refreshed from the store.
package recognize

import (
	"context"
	"image"
	"math"
	"sync/atomic"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/vision"
)

// CorpusSource supplies the full stored corpus for index refresh. Satisfied
// by *store.Store.
type CorpusSource interface {
	AllEmbeddings(ctx context.Context) ([]models.LabeledEmbedding, error)
}

// Match is the result of one recognition: the winning identity (or
// UnknownIdentity) and the best similarity score achieved, so callers can
// distinguish a near miss from an empty corpus.
type Match struct {
	Name       string
	Confidence float64
	Recognized bool
}

// Recognizer generates embeddings for face regions and matches them against
// the corpus. Threshold is the single configurable acceptance cutoff; the
// default is tuned low to favor recall.
type Recognizer struct {
	embedder  vision.Embedder
	corpus    CorpusSource
	index     *Index
	threshold float64
	lastConf  atomic.Uint64 // float64 bits
}

func NewRecognizer(embedder vision.Embedder, corpus CorpusSource, threshold float64) *Recognizer {
	return &Recognizer{
		embedder:  embedder,
		corpus:    corpus,
		index:     NewIndex(),
		threshold: threshold,
	}
}

// Refresh rebuilds the matching index from the store.
func (r *Recognizer) Refresh(ctx context.Context) error {
	all, err := r.corpus.AllEmbeddings(ctx)
	if err != nil {
		return err
	}
	r.index.Rebuild(all)
	observability.IndexSize.Set(float64(r.index.Size()))
	return nil
}

// AddSample appends one freshly enrolled embedding to the live index,
// avoiding the full corpus re-read a Refresh would cost.
func (r *Recognizer) AddSample(name string, vec []float32) {
	r.index.Add(models.LabeledEmbedding{Name: name, Vector: vec})
	observability.IndexSize.Set(float64(r.index.Size()))
}

// GenerateEmbedding turns a cropped face region into a fixed-length vector.
func (r *Recognizer) GenerateEmbedding(region image.Image) ([]float32, error) {
	return r.embedder.Embed(region)
}

// Recognize embeds the region and returns the best-scoring identity, or
// UnknownIdentity when the best score misses the threshold. An empty corpus
// reports UnknownIdentity with zero confidence, never an error. Multiple
// samples per identity are independent candidates: an identity wins if any
// of its samples beats the threshold and the overall best score.
func (r *Recognizer) Recognize(ctx context.Context, region image.Image) (Match, error) {
	query, err := r.embedder.Embed(region)
	if err != nil {
		return Match{}, err
	}
	return r.MatchVector(query), nil
}

// MatchVector matches an already-generated embedding.
func (r *Recognizer) MatchVector(query []float32) Match {
	name, score, ok := r.index.Best(query)
	if !ok {
		r.setLastConfidence(0)
		return Match{Name: models.UnknownIdentity, Confidence: 0}
	}

	r.setLastConfidence(score)
	if score < r.threshold {
		return Match{Name: models.UnknownIdentity, Confidence: score}
	}
	return Match{Name: name, Confidence: score, Recognized: true}
}

// LastConfidence reports the confidence of the most recent recognition.
func (r *Recognizer) LastConfidence() float64 {
	return math.Float64frombits(r.lastConf.Load())
}

func (r *Recognizer) setLastConfidence(v float64) {
	r.lastConf.Store(math.Float64bits(v))
}

// Threshold returns the configured acceptance threshold.
func (r *Recognizer) Threshold() float64 { return r.threshold }

// IndexSize returns the number of embeddings currently indexed.
func (r *Recognizer) IndexSize() int { return r.index.Size() }
