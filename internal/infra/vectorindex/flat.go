package vectorindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

var flatMagic = [4]byte{'H', 'B', 'I', 'X'}

const (
	// MaxFlatDimension bounds the row size accepted by ReadFlat.
	MaxFlatDimension = 1 << 16
	// MaxFlatValues bounds dim*count accepted by ReadFlat (4 GiB of float32).
	MaxFlatValues = 1 << 30

	// flatReadChunk caps the up-front allocation; data grows as rows arrive.
	flatReadChunk = 1 << 20
)

// Flat is an exact inner-product index over a row-major matrix.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat builds an index from rows that must all share one dimension.
func NewFlat(dim int, rows [][]float32) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be positive")
	}
	data := make([]float32, 0, dim*len(rows))
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("vectorindex: row %d has dimension %d, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	return &Flat{dim: dim, data: data}, nil
}

// Search returns the k rows with the largest inner product, position order on ties.
func (f *Flat) Search(_ context.Context, vector []float32, k int) ([]healthbot.IndexHit, error) {
	if k <= 0 || f.Len() == 0 {
		return nil, nil
	}
	if len(vector) != f.dim {
		return nil, fmt.Errorf("vectorindex: query dimension %d, expected %d", len(vector), f.dim)
	}
	hits := make([]healthbot.IndexHit, f.Len())
	for pos := range hits {
		row := f.data[pos*f.dim : (pos+1)*f.dim]
		var dot float64
		for j, x := range row {
			dot += float64(x) * float64(vector[j])
		}
		hits[pos] = healthbot.IndexHit{Position: pos, Score: dot}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports the number of indexed rows.
func (f *Flat) Len() int {
	return len(f.data) / f.dim
}

// Dimension reports the row size.
func (f *Flat) Dimension() int {
	return f.dim
}

// WriteFlat serializes rows as magic, dim, count and little-endian float32 data.
func WriteFlat(w io.Writer, dim int, rows [][]float32) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatMagic[:]); err != nil {
		return err
	}
	header := []uint32{uint32(dim), uint32(len(rows))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("vectorindex: row %d has dimension %d, expected %d", i, len(row), dim)
		}
		for _, x := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ReadFlat loads an index written by WriteFlat.
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("vectorindex: read header: %w", err)
	}
	if magic != flatMagic {
		return nil, errors.New("vectorindex: not a flat index file")
	}
	var header [2]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("vectorindex: read header: %w", err)
	}
	dim, count := uint64(header[0]), uint64(header[1])
	if dim == 0 || dim > MaxFlatDimension {
		return nil, fmt.Errorf("vectorindex: dimension %d outside 1..%d", dim, MaxFlatDimension)
	}
	total := dim * count
	if total > MaxFlatValues {
		return nil, fmt.Errorf("vectorindex: %d rows of dimension %d exceed %d values", count, dim, MaxFlatValues)
	}

	data := make([]float32, 0, min(total, flatReadChunk))
	row := make([]float32, dim)
	for i := uint64(0); i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("vectorindex: read row %d of %d (dimension %d): %w", i, count, dim, err)
		}
		data = append(data, row...)
	}
	return &Flat{dim: int(dim), data: data}, nil
}

var _ healthbot.VectorIndex = (*Flat)(nil)
