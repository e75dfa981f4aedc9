package vectorstore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/itish2003/ragagent/models"
)

const (
	indexVersion = 1
	manifestFile = "index_manifest.json"
	chunksFile   = "chunks.jsonl"
	vectorsFile  = "vectors.f32"
)

// Manifest describes an index directory and how to interpret its vectors.
type Manifest struct {
	IndexVersion int    `json:"index_version"`
	ModelID      string `json:"model_id"`
	Dim          int    `json:"dim"`
	Metric       Metric `json:"metric"`
	Count        int    `json:"count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// snapshot is the full in-memory content of an index. vectors is row-major,
// Count*Dim floats.
type snapshot struct {
	manifest Manifest
	chunks   []models.Chunk
	vectors  []float32
}

func (s *snapshot) row(i int) []float32 {
	d := s.manifest.Dim
	return s.vectors[i*d : (i+1)*d]
}

// readSnapshot loads dir. It returns nil, nil when dir holds no index.
func readSnapshot(dir string) (*snapshot, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest in %s: %w", dir, err)
	}
	if m.Dim < 0 || m.Count < 0 {
		return nil, fmt.Errorf("invalid manifest in %s: dim=%d count=%d", dir, m.Dim, m.Count)
	}

	chunks, err := readChunks(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, err
	}
	if len(chunks) != m.Count {
		return nil, fmt.Errorf("chunk count mismatch in %s: got %d want %d", dir, len(chunks), m.Count)
	}
	vectors, err := readVectors(filepath.Join(dir, vectorsFile), m.Count*m.Dim)
	if err != nil {
		return nil, err
	}
	return &snapshot{manifest: m, chunks: chunks, vectors: vectors}, nil
}

func readChunks(path string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open chunks file %s: %w", path, err)
	}
	defer f.Close()

	var out []models.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c models.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("invalid chunks JSONL %s: %w", path, err)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read chunks file %s: %w", path, err)
	}
	return out, nil
}

func readVectors(path string, n int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	if want := int64(n) * 4; st.Size() != want {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d", st.Size(), want)
	}

	out := make([]float32, n)
	if err := binary.Read(io.LimitReader(f, int64(n)*4), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}

// writeSnapshot writes s into a fresh sibling directory and swaps it in place
// of dir, so readers never observe a half-written index.
func writeSnapshot(dir string, s *snapshot) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("cannot create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeFiles(tmp, s); err != nil {
		return err
	}

	old := dir + ".old"
	_ = os.RemoveAll(old)
	if err := os.Rename(dir, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot move previous index aside: %w", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.Rename(old, dir)
		return fmt.Errorf("cannot install index: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}

func writeFiles(dir string, s *snapshot) error {
	mb, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}

	cf, err := os.Create(filepath.Join(dir, chunksFile))
	if err != nil {
		return fmt.Errorf("cannot create chunks file: %w", err)
	}
	bw := bufio.NewWriter(cf)
	enc := json.NewEncoder(bw)
	for _, c := range s.chunks {
		if err := enc.Encode(c); err != nil {
			_ = cf.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = cf.Close()
		return err
	}
	if err := cf.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, s.vectors); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return vf.Close()
}
