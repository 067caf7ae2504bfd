package matcher

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// indexMaxNeighbors is the HNSW M parameter
const indexMaxNeighbors = 16

// Index is an approximate nearest-neighbour index over gallery embeddings.
// It only narrows the candidate set; the Comparator still decides.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	metric string
	dims   int
}

// NewIndex creates an empty index using the distance that fits metric
func NewIndex(metric string) *Index {
	idx := &Index{metric: metric}
	idx.graph = idx.newGraph()
	return idx
}

func (i *Index) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	if i.metric == "cosine" {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}
	return g
}

// Build replaces the index contents with the given gallery
func (i *Index) Build(entries []domain.GalleryEntry) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.graph = i.newGraph()
	i.dims = 0
	for _, e := range entries {
		i.addLocked(e.Identity.Key, e.Embedding)
	}
}

// Add inserts or replaces a single entry
func (i *Index) Add(key string, embedding domain.Embedding) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.addLocked(key, embedding)
}

func (i *Index) addLocked(key string, embedding domain.Embedding) {
	if len(embedding) == 0 {
		return
	}
	if i.dims == 0 {
		i.dims = len(embedding)
	}
	// the graph requires a single dimensionality
	if len(embedding) != i.dims {
		return
	}
	i.graph.Add(hnsw.MakeNode(key, embedding.Float32()))
}

// Len returns the number of indexed embeddings
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.graph.Len()
}

// Candidates returns up to k keys nearest to probe
func (i *Index) Candidates(probe domain.Embedding, k int) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.graph.Len() == 0 || k <= 0 || len(probe) != i.dims {
		return nil
	}

	neighbors := i.graph.Search(probe.Float32(), k)
	keys := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		keys = append(keys, n.Key)
	}
	return keys
}
