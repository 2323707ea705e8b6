// Package fingerprint computes content identities for duplicate
// detection. It streams files through xxHash64 in fixed-size chunks, so
// memory use is constant regardless of file size. Fingerprints are a
// grouping heuristic, not a security boundary: callers deleting one of
// two "identical" files must re-verify byte equality with Equal first.
package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ChunkSize is the read granularity for hashing and comparison.
const ChunkSize = 8192

// ErrTooLarge indicates the file's reported size exceeds the ceiling;
// its contents were never read.
var ErrTooLarge = errors.New("file exceeds fingerprint ceiling")

// File fingerprints the content at path. A ceiling > 0 skips files whose
// stat size already exceeds it, returning ErrTooLarge without reading.
// The context is honored between chunks, so a per-call deadline bounds
// how long a hung device can stall the hash.
func File(ctx context.Context, path string, ceiling int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if ceiling > 0 && info.Size() > ceiling {
		return "", fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, path, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return Reader(ctx, f)
}

// Reader fingerprints a stream.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	digest := xxhash.New()
	buf := make([]byte, ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.Read(buf)
		if n > 0 {
			_, _ = digest.Write(buf[:n]) // xxhash.Write never fails
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

// Equal streams both files and reports whether their bytes are
// identical. Differing sizes short-circuit without reading content.
func Equal(ctx context.Context, pathA, pathB string) (bool, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	a, err := os.Open(pathA)
	if err != nil {
		return false, err
	}
	defer a.Close()

	b, err := os.Open(pathB)
	if err != nil {
		return false, err
	}
	defer b.Close()

	bufA := make([]byte, ChunkSize)
	bufB := make([]byte, ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		nA, errA := io.ReadFull(a, bufA)
		nB, errB := io.ReadFull(b, bufB)

		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}

		done := errA == io.EOF || errA == io.ErrUnexpectedEOF
		if done {
			return true, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}

// IsTooLarge reports whether err is the over-ceiling skip.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}
