package recognize

import (
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/your-org/faceid/internal/models"
)

// searchK is how many approximate neighbours are pulled from the graph and
// re-scored exactly per query.
const searchK = 16

// Index is the in-memory matching index over the stored corpus. Every
// stored embedding is an independent candidate keyed by its position in
// stored order, so exact-score ties resolve to the first-stored sample.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int]
	entries []models.LabeledEmbedding
}

func NewIndex() *Index {
	return &Index{}
}

// Rebuild replaces the index contents with the given corpus.
func (ix *Index) Rebuild(corpus []models.LabeledEmbedding) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(corpus) == 0 {
		ix.graph = nil
		ix.entries = nil
		return
	}

	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance

	for i := range corpus {
		if len(corpus[i].Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, corpus[i].Vector))
	}

	ix.graph = g
	ix.entries = corpus
}

// Add appends one embedding without a full rebuild.
func (ix *Index) Add(entry models.LabeledEmbedding) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(entry.Vector) == 0 {
		return
	}
	if ix.graph == nil {
		ix.graph = hnsw.NewGraph[int]()
		ix.graph.Distance = hnsw.CosineDistance
	}
	ix.entries = append(ix.entries, entry)
	ix.graph.Add(hnsw.MakeNode(len(ix.entries)-1, entry.Vector))
}

// Size returns the number of indexed embeddings.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Best returns the identity whose sample scores highest against the query,
// with the exact cosine similarity. ok is false when the index is empty.
func (ix *Index) Best(query []float32) (name string, score float64, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil || len(ix.entries) == 0 {
		return "", 0, false
	}

	neighbors := ix.graph.Search(query, searchK)
	if len(neighbors) == 0 {
		return "", 0, false
	}

	bestIdx := -1
	bestScore := math.Inf(-1)
	for _, n := range neighbors {
		s := CosineSimilarity(query, n.Value)
		// On an exact tie the earlier-stored sample wins.
		if s > bestScore || (s == bestScore && (bestIdx == -1 || n.Key < bestIdx)) {
			bestScore = s
			bestIdx = n.Key
		}
	}
	if bestIdx < 0 {
		return "", 0, false
	}
	return ix.entries[bestIdx].Name, bestScore, true
}

// CosineSimilarity returns the cosine of the angle between a and b,
// in [-1, 1]. Zero-norm inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
