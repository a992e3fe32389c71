package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
)

// File format, little-endian:
//   magic "KIDX" (4), version uint32, docID (len-prefixed), dimensions uint32,
//   count uint32, then per chunk: index uint32, start uint64, text
//   (len-prefixed), vector (dimensions * 4 bytes).
const (
	indexMagic   = "KIDX"
	indexVersion = 1
)

// IndexPath returns the deterministic storage location for a document's index:
// one directory per document identifier.
func IndexPath(root, docID string) string {
	return filepath.Join(root, "doc_"+docID, "index.bin")
}

// Save persists the index to path. The parent directory is created if needed.
// The file is written to a temp name and renamed into place, so a concurrent
// Load never observes a partially written index.
func (idx *Index) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)

	err = idx.encode(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("publish index: %w", err)
	}
	return nil
}

func (idx *Index) encode(w io.Writer) error {
	if _, err := w.Write([]byte(indexMagic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(indexVersion)); err != nil {
		return err
	}
	if err := writeString(w, idx.docID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(idx.dimensions)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.chunks))); err != nil {
		return err
	}
	for i, ch := range idx.chunks {
		if err := binary.Write(w, binary.LittleEndian, uint32(ch.Index)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(ch.Start)); err != nil {
			return err
		}
		if err := writeString(w, ch.Text); err != nil {
			return err
		}
		if _, err := w.Write(float32SliceToBytes(idx.vectors[i])); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a persisted index from path. A missing, truncated, corrupt, or
// version-mismatched file returns an error wrapping ErrIndexUnavailable so the
// caller can rebuild instead of failing the request.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		// Wrap the os error too so callers can tell missing from corrupt.
		return nil, fmt.Errorf("%w: open %s: %w", ErrIndexUnavailable, path, err)
	}
	defer f.Close()

	idx, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrIndexUnavailable, path, err)
	}
	return idx, nil
}

func decode(r io.Reader) (*Index, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != indexVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	docID, err := readString(r)
	if err != nil {
		return nil, err
	}
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if dim == 0 || count == 0 {
		return nil, fmt.Errorf("empty index (dim=%d, count=%d)", dim, count)
	}

	idx := &Index{
		docID:      docID,
		dimensions: int(dim),
		chunks:     make([]models.Chunk, 0, count),
		vectors:    make([][]float32, 0, count),
	}
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		var chunkIndex uint32
		var start uint64
		if err := binary.Read(r, binary.LittleEndian, &chunkIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
			return nil, err
		}
		text, err := readString(r)
		if err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, err
		}
		idx.chunks = append(idx.chunks, models.Chunk{
			DocumentID: docID,
			Index:      int(chunkIndex),
			Start:      int(start),
			Text:       text,
		})
		idx.vectors = append(idx.vectors, bytesToFloat32Slice(vecBuf))
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	const maxStringLen = 64 << 20
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d too large", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
