package vectorstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.json"

	// Binary layout marker for the vectors file. Bumping it
	// invalidates old artifacts on load.
	vectorsMagic uint32 = 0x56454331 // "VEC1"
)

// ChunkMeta is the retrievable payload stored alongside each vector.
type ChunkMeta struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

// SearchResult pairs a stored chunk with its cosine similarity to the
// query vector.
type SearchResult struct {
	Meta  ChunkMeta
	Score float64
}

// DimensionMismatchError rejects a vector whose length differs from
// the index dimension. Adding it anyway would corrupt every
// similarity score, so the add fails instead.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension %d does not match index dimension %d", e.Got, e.Want)
}

// FlatIndex is an exact-search vector index persisted as a pair of
// artifacts: a binary vector file and a JSON metadata file. Vectors
// are L2-normalized on insert so inner product equals cosine
// similarity at query time. Every successful Add writes both
// artifacts through to disk atomically.
type FlatIndex struct {
	mu        sync.RWMutex
	dir       string
	dimension int
	vectors   [][]float32
	metas     []ChunkMeta

	// mtime of the vectors artifact at last load, used by readers
	// to notice writes from another process.
	loadedAt time.Time
}

// NewFlatIndex opens or creates an index under dir. Missing or
// unreadable artifacts mean a cold start, never an error: the index
// rebuilds as documents are reprocessed.
func NewFlatIndex(dir string, dimension int) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dimension)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	idx := &FlatIndex{dir: dir, dimension: dimension}
	idx.load()
	return idx, nil
}

func (idx *FlatIndex) Dimension() int { return idx.dimension }

// Count returns the number of stored vectors.
func (idx *FlatIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Add appends vectors with their metadata and persists the index.
// Input slices must be the same length and every vector must match
// the index dimension; nothing is stored when validation fails.
func (idx *FlatIndex) Add(vectors [][]float32, metas []ChunkMeta) error {
	if len(vectors) != len(metas) {
		return fmt.Errorf("got %d vectors for %d metadata entries", len(vectors), len(metas))
	}
	for _, v := range vectors {
		if len(v) != idx.dimension {
			return &DimensionMismatchError{Want: idx.dimension, Got: len(v)}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, v := range vectors {
		idx.vectors = append(idx.vectors, normalize(v))
		idx.metas = append(idx.metas, metas[i])
	}
	return idx.saveLocked()
}

// RemoveDocument drops all vectors that belong to one document and
// persists the result. Used when a document is deleted or
// reprocessed.
func (idx *FlatIndex) RemoveDocument(documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := 0
	for i, m := range idx.metas {
		if m.DocumentID == documentID {
			continue
		}
		idx.vectors[kept] = idx.vectors[i]
		idx.metas[kept] = m
		kept++
	}
	if kept == len(idx.metas) {
		return nil
	}
	idx.vectors = idx.vectors[:kept]
	idx.metas = idx.metas[:kept]
	return idx.saveLocked()
}

// Search returns the topK nearest stored chunks by cosine similarity.
// An empty index yields an empty result, not an error.
func (idx *FlatIndex) Search(query []float32, topK int) ([]SearchResult, error) {
	if len(query) != idx.dimension {
		return nil, &DimensionMismatchError{Want: idx.dimension, Got: len(query)}
	}

	idx.maybeReload()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return []SearchResult{}, nil
	}

	q := normalize(query)
	results := make([]SearchResult, len(idx.vectors))
	for i, v := range idx.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		results[i] = SearchResult{Meta: idx.metas[i], Score: dot}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// maybeReload re-reads the artifacts when another process has written
// them since our last load. API readers pick up worker writes this
// way without any coordination channel.
func (idx *FlatIndex) maybeReload() {
	info, err := os.Stat(filepath.Join(idx.dir, vectorsFile))
	if err != nil {
		return
	}

	idx.mu.RLock()
	stale := info.ModTime().After(idx.loadedAt)
	idx.mu.RUnlock()
	if !stale {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.loadLocked()
}

func (idx *FlatIndex) load() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.loadLocked()
}

// loadLocked reads both artifacts. Any missing or inconsistent state
// resets to an empty index: the store of record is the database, and
// vectors can always be rebuilt from it.
func (idx *FlatIndex) loadLocked() {
	idx.vectors = nil
	idx.metas = nil
	idx.loadedAt = time.Time{}

	vecPath := filepath.Join(idx.dir, vectorsFile)
	metaPath := filepath.Join(idx.dir, metadataFile)

	vecInfo, err := os.Stat(vecPath)
	if err != nil {
		return
	}
	if _, err := os.Stat(metaPath); err != nil {
		log.Printf("Vector index metadata missing, starting empty: %v", err)
		return
	}

	vectors, err := readVectors(vecPath, idx.dimension)
	if err != nil {
		log.Printf("Vector index unreadable, starting empty: %v", err)
		return
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		log.Printf("Vector index metadata unreadable, starting empty: %v", err)
		return
	}
	var metas []ChunkMeta
	if err := json.Unmarshal(metaBytes, &metas); err != nil {
		log.Printf("Vector index metadata corrupt, starting empty: %v", err)
		return
	}

	if len(metas) != len(vectors) {
		log.Printf("Vector index corrupt: %d vectors but %d metadata entries, starting empty",
			len(vectors), len(metas))
		return
	}

	idx.vectors = vectors
	idx.metas = metas
	idx.loadedAt = vecInfo.ModTime()
	log.Printf("Vector index loaded: %d vectors (dim=%d)", len(vectors), idx.dimension)
}

// saveLocked writes both artifacts via temp files and renames, so a
// crash mid-write never leaves a half-written pair.
func (idx *FlatIndex) saveLocked() error {
	vecPath := filepath.Join(idx.dir, vectorsFile)
	metaPath := filepath.Join(idx.dir, metadataFile)

	if err := writeVectors(vecPath, idx.dimension, idx.vectors); err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	metaBytes, err := json.Marshal(idx.metas)
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %w", err)
	}
	if err := atomicWrite(metaPath, metaBytes); err != nil {
		return fmt.Errorf("failed to persist index metadata: %w", err)
	}

	if info, err := os.Stat(vecPath); err == nil {
		idx.loadedAt = info.ModTime()
	}
	return nil
}

func readVectors(path string, dimension int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("vectors file truncated")
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != vectorsMagic {
		return nil, fmt.Errorf("unrecognized vectors file format")
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	if dim != dimension {
		return nil, fmt.Errorf("vectors file dimension %d does not match configured %d", dim, dimension)
	}
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	want := 12 + count*dim*4
	if len(data) != want {
		return nil, fmt.Errorf("vectors file size %d does not match header (want %d)", len(data), want)
	}

	vectors := make([][]float32, count)
	offset := 12
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			vec[j] = math.Float32frombits(bits)
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func writeVectors(path string, dimension int, vectors [][]float32) error {
	buf := make([]byte, 12+len(vectors)*dimension*4)
	binary.LittleEndian.PutUint32(buf[0:4], vectorsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(dimension))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(vectors)))

	offset := 12
	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[offset:offset+4], math.Float32bits(v))
			offset += 4
		}
	}
	return atomicWrite(path, buf)
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	inv := float32(1 / math.Sqrt(norm))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
