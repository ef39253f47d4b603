// Package files splits content into the byte ranges of a chunked upload and
// computes the SHA-1 digests the upload protocol asks for.
package files

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	ErrGap     = errors.New("parts leave a gap")
	ErrOverlap = errors.New("parts overlap")
)

// FilePart is the inclusive byte range [Begin, End] of part number Index.
// Data and Digest are only set by ReadPart.
type FilePart struct {
	Index  int
	Begin  int64
	End    int64
	Data   []byte
	Digest []byte
}

func (p FilePart) Size() int64 {
	return p.End - p.Begin + 1
}

// PlanParts splits size bytes into consecutive parts of partSize bytes; the
// last one may be shorter.
func PlanParts(size, partSize int64) ([]FilePart, error) {
	if partSize <= 0 {
		return nil, fmt.Errorf("invalid part size %d", partSize)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid file size %d", size)
	}

	parts := make([]FilePart, 0, (size+partSize-1)/partSize)
	for begin := int64(0); begin < size; begin += partSize {
		end := begin + partSize - 1
		if end >= size {
			end = size - 1
		}
		parts = append(parts, FilePart{
			Index: len(parts),
			Begin: begin,
			End:   end,
		})
	}
	return parts, nil
}

// ReadPart reads the bytes of part from r and returns the part with Data and
// its SHA-1 Digest filled in.
func ReadPart(r io.ReaderAt, part FilePart) (FilePart, error) {
	data := make([]byte, part.Size())
	n, err := r.ReadAt(data, part.Begin)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == part.Size()) {
		return part, fmt.Errorf("read bytes %d-%d: %w", part.Begin, part.End, err)
	}

	h := sha1.New()
	h.Write(data)

	part.Data = data
	part.Digest = h.Sum(nil)
	return part, nil
}

// Digest returns the SHA-1 of the first size bytes of r.
func Digest(r io.ReaderAt, size int64) ([]byte, error) {
	h := sha1.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// ValidateTiling checks that parts cover [0, size) exactly once.
func ValidateTiling(size int64, parts []FilePart) error {
	sorted := append([]FilePart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	next := int64(0)
	for _, p := range sorted {
		switch {
		case p.Begin > next:
			return fmt.Errorf("%w: bytes %d-%d", ErrGap, next, p.Begin-1)
		case p.Begin < next:
			return fmt.Errorf("%w: bytes %d-%d", ErrOverlap, p.Begin, next-1)
		}
		next = p.End + 1
	}
	if next != size {
		if next < size {
			return fmt.Errorf("%w: bytes %d-%d", ErrGap, next, size-1)
		}
		return fmt.Errorf("%w: parts end at byte %d past size %d", ErrOverlap, next-1, size)
	}
	return nil
}
