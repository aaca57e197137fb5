package index

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/leafwise/tomatodoc/internal/domain"
)

// The index persists as a single parquet file. Key-value metadata
// carries the format version and the embedding model identity, so an
// index built with a different model or format is rejected at load
// time instead of being silently coerced.
const (
	formatVersion  = "1"
	metaVersionKey = "tomatodoc.format_version"
	metaModelKey   = "tomatodoc.embedding_model"
	metaDimsKey    = "tomatodoc.dimensions"
)

type chunkRow struct {
	SourceID string    `parquet:"source_id"`
	Seq      int32     `parquet:"seq"`
	Text     string    `parquet:"text"`
	Vector   []float32 `parquet:"vector,list"`
}

// Save writes the index to path. The file is written to a temporary
// sibling and renamed into place, so a reader can never observe a
// half-written index.
func (ix *Index) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if err := ix.writeParquet(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename index into place: %w", err)
	}
	return nil
}

func (ix *Index) writeParquet(w io.Writer) error {
	writer := parquet.NewGenericWriter[chunkRow](w,
		parquet.KeyValueMetadata(metaVersionKey, formatVersion),
		parquet.KeyValueMetadata(metaModelKey, ix.model),
		parquet.KeyValueMetadata(metaDimsKey, strconv.Itoa(ix.dims)),
	)

	rows := make([]chunkRow, len(ix.chunks))
	for i, c := range ix.chunks {
		rows[i] = chunkRow{
			SourceID: c.SourceID(),
			Seq:      int32(c.Seq()),
			Text:     c.Text(),
			Vector:   ix.vectors[i],
		}
	}

	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write index rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize index file: %w", err)
	}
	return nil
}

// Load restores an index from path. wantModel and wantDims describe the
// currently configured embedding model; a disagreement means the index
// belongs to a different model and fails as corrupt.
func Load(path string, wantModel string, wantDims int) (*Index, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("index file %s: %w", path, domain.ErrIndexNotFound)
		}
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("parse index file: %v: %w", err, domain.ErrIndexCorrupt)
	}

	dims, model, err := checkMetadata(pf, wantModel, wantDims)
	if err != nil {
		return nil, err
	}

	chunks, vectors, err := readRows(pf, dims)
	if err != nil {
		return nil, err
	}

	return &Index{chunks: chunks, vectors: vectors, dims: dims, model: model}, nil
}

func checkMetadata(pf *parquet.File, wantModel string, wantDims int) (int, string, error) {
	version, ok := pf.Lookup(metaVersionKey)
	if !ok {
		return 0, "", fmt.Errorf("index file has no format version: %w", domain.ErrIndexCorrupt)
	}
	if version != formatVersion {
		return 0, "", fmt.Errorf("unsupported index format version %q: %w", version, domain.ErrIndexCorrupt)
	}

	dimsStr, ok := pf.Lookup(metaDimsKey)
	if !ok {
		return 0, "", fmt.Errorf("index file has no dimensionality: %w", domain.ErrIndexCorrupt)
	}
	dims, err := strconv.Atoi(dimsStr)
	if err != nil || dims <= 0 {
		return 0, "", fmt.Errorf("invalid index dimensionality %q: %w", dimsStr, domain.ErrIndexCorrupt)
	}
	if wantDims > 0 && dims != wantDims {
		return 0, "", domain.NewDimensionMismatch(dims, wantDims)
	}

	model, _ := pf.Lookup(metaModelKey)
	if wantModel != "" && model != wantModel {
		return 0, "", fmt.Errorf("index built with embedding model %q, configured model is %q: %w",
			model, wantModel, domain.ErrIndexCorrupt)
	}

	return dims, model, nil
}

// indexColumns holds leaf-level column indexes resolved by name.
type indexColumns struct {
	sourceID int
	seq      int
	text     int
	vector   int
}

func resolveColumns(pf *parquet.File) (indexColumns, error) {
	cols := indexColumns{sourceID: -1, seq: -1, text: -1, vector: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "source_id":
			cols.sourceID = i
		case "seq":
			cols.seq = i
		case "text":
			cols.text = i
		case "vector":
			cols.vector = i
		}
	}
	if cols.sourceID < 0 || cols.seq < 0 || cols.text < 0 || cols.vector < 0 {
		return cols, fmt.Errorf("index file schema is missing columns: %w", domain.ErrIndexCorrupt)
	}
	return cols, nil
}

func readRows(pf *parquet.File, dims int) ([]domain.Chunk, [][]float32, error) {
	cols, err := resolveColumns(pf)
	if err != nil {
		return nil, nil, err
	}

	var chunks []domain.Chunk
	var vectors [][]float32

	for _, rg := range pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		buf := make([]parquet.Row, 64)

		for {
			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				chunk, vec := decodeRow(buf[i], cols)
				if len(vec) != dims {
					return nil, nil, fmt.Errorf("chunk %s#%d has dimensionality %d, header says %d: %w",
						chunk.SourceID(), chunk.Seq(), len(vec), dims, domain.ErrIndexCorrupt)
				}
				chunks = append(chunks, chunk)
				vectors = append(vectors, vec)
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, nil, fmt.Errorf("read index rows: %v: %w", readErr, domain.ErrIndexCorrupt)
			}
		}
	}

	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("index file holds no chunks: %w", domain.ErrIndexCorrupt)
	}
	return chunks, vectors, nil
}

func decodeRow(row parquet.Row, cols indexColumns) (domain.Chunk, []float32) {
	var sourceID, text string
	var seq int32
	var vec []float32

	for _, v := range row {
		switch v.Column() {
		case cols.sourceID:
			sourceID = v.String()
		case cols.seq:
			seq = v.Int32()
		case cols.text:
			text = v.String()
		case cols.vector:
			if !v.IsNull() {
				vec = append(vec, v.Float())
			}
		}
	}

	return domain.ReconstructChunk(text, sourceID, int(seq)), vec
}
