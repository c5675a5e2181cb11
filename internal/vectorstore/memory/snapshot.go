package memory

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"docqa/internal/domain"
)

const (
	IndexSuffix    = ".index"
	MetadataSuffix = ".metadata"

	blobVersion    = 2
	blobHeaderSize = 4 + 4 + 4 + 8 + 4
)

var blobMagic = [4]byte{'D', 'Q', 'I', 'X'}

const metadataSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["document_id", "filename", "chunk_index", "text"],
    "properties": {
      "document_id": {"type": "string"},
      "filename": {"type": "string"},
      "chunk_index": {"type": "integer", "minimum": 0},
      "text": {"type": "string"},
      "page_number": {"type": ["integer", "null"]}
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(metadataSchema))
})

// Save writes the index to path+".index" (vectors) and path+".metadata"
// (JSON records in index order). Each file is replaced atomically, and the
// vector blob records the CRC-32 of the metadata it was written with, so a
// pair left mixed by an interrupted save fails to load.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	chunks := s.chunks
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	meta, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		s.mu.RUnlock()
		return fmt.Errorf("encode metadata: %w", err)
	}
	blob, err := encodeBlob(s.dimension, s.vectors, crc32.ChecksumIEEE(meta))
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := writeFileAtomic(path+MetadataSuffix, meta); err != nil {
		return err
	}
	return writeFileAtomic(path+IndexSuffix, blob)
}

// Load replaces the index content with the snapshot at path. When neither
// artifact exists the returned error wraps fs.ErrNotExist; any disagreement
// between the artifacts is reported as domain.ErrIndexCorruption and leaves
// the current content untouched.
func (s *Storage) Load(path string) error {
	blob, blobErr := os.ReadFile(path + IndexSuffix)
	meta, metaErr := os.ReadFile(path + MetadataSuffix)
	if errors.Is(blobErr, fs.ErrNotExist) && errors.Is(metaErr, fs.ErrNotExist) {
		return fmt.Errorf("load index %s: %w", path, fs.ErrNotExist)
	}
	if blobErr != nil {
		return fmt.Errorf("%w: read vectors: %v", domain.ErrIndexCorruption, blobErr)
	}
	if metaErr != nil {
		return fmt.Errorf("%w: read metadata: %v", domain.ErrIndexCorruption, metaErr)
	}

	dimension, sum, vectors, err := decodeBlob(blob)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}
	if dimension != s.dimension {
		return fmt.Errorf("%w: snapshot dimension %d, index dimension %d", domain.ErrIndexCorruption, dimension, s.dimension)
	}
	if got := crc32.ChecksumIEEE(meta); got != sum {
		return fmt.Errorf("%w: metadata checksum %08x, vector blob expects %08x", domain.ErrIndexCorruption, got, sum)
	}
	chunks, err := decodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d vectors but %d metadata records", domain.ErrIndexCorruption, len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = vectors
	s.chunks = chunks
	return nil
}

func encodeBlob(dimension int, vectors [][]float32, metaSum uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(blobHeaderSize + len(vectors)*dimension*4)
	buf.Write(blobMagic[:])
	header := []any{uint32(blobVersion), uint32(dimension), uint64(len(vectors)), metaSum}
	for _, h := range header {
		if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
			return nil, err
		}
	}
	for _, v := range vectors {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// decodeBlob returns the dimension, the metadata checksum and the vectors.
func decodeBlob(blob []byte) (int, uint32, [][]float32, error) {
	if len(blob) < blobHeaderSize {
		return 0, 0, nil, fmt.Errorf("vector blob truncated: %d bytes", len(blob))
	}
	if !bytes.Equal(blob[:4], blobMagic[:]) {
		return 0, 0, nil, errors.New("vector blob has unknown format")
	}
	version := binary.LittleEndian.Uint32(blob[4:8])
	if version != blobVersion {
		return 0, 0, nil, fmt.Errorf("vector blob version %d not supported", version)
	}
	dimension := int(binary.LittleEndian.Uint32(blob[8:12]))
	count := binary.LittleEndian.Uint64(blob[12:20])
	sum := binary.LittleEndian.Uint32(blob[20:24])
	if dimension <= 0 {
		return 0, 0, nil, fmt.Errorf("vector blob dimension %d", dimension)
	}
	body := blob[blobHeaderSize:]
	if uint64(len(body)) != count*uint64(dimension)*4 {
		return 0, 0, nil, fmt.Errorf("vector blob holds %d bytes for %d vectors of dimension %d", len(body), count, dimension)
	}
	r := bytes.NewReader(body)
	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return 0, 0, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = v
	}
	return dimension, sum, vectors, nil
}

func decodeMetadata(data []byte) ([]domain.Chunk, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile metadata schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid metadata: %s", strings.Join(msgs, "; "))
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return chunks, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
