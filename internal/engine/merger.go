package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/tanq16/rangeflow/internal/utils"
)

// preparePartFiles returns the bytes already held by the part files of a
// previous attempt. A part larger than its range cannot be trusted and is
// truncated.
func preparePartFiles(outputPath string, ranges []utils.ByteRange) (int64, error) {
	var resumed int64
	for i, r := range ranges {
		partPath := utils.PartPath(outputPath, i)
		info, err := os.Stat(partPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("error inspecting part %d: %w", i, err)
		}
		if info.Size() > r.Length() {
			if err := os.Truncate(partPath, 0); err != nil {
				return 0, fmt.Errorf("error truncating part %d: %w", i, err)
			}
			continue
		}
		resumed += info.Size()
	}
	return resumed, nil
}

// mergeParts writes every part, in range order, into outputPath. Part files
// are left in place; the caller removes them once the merge succeeded.
func mergeParts(outputPath string, ranges []utils.ByteRange, fileSize int64) error {
	dest, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer dest.Close()

	var totalWritten int64
	for i, r := range ranges {
		written, err := appendPart(dest, utils.PartPath(outputPath, i))
		if err != nil {
			return fmt.Errorf("error merging part %d: %w", i, err)
		}
		if written != r.Length() {
			return fmt.Errorf("%w: part %d holds %d bytes, range needs %d", utils.ErrSizeMismatch, i, written, r.Length())
		}
		totalWritten += written
	}
	if totalWritten != fileSize {
		return fmt.Errorf("%w: expected %d, got %d", utils.ErrSizeMismatch, fileSize, totalWritten)
	}
	return dest.Sync()
}

func appendPart(dest io.Writer, partPath string) (int64, error) {
	part, err := os.Open(partPath)
	if err != nil {
		return 0, err
	}
	defer part.Close()
	if err := utils.LockFile(part, false); err != nil {
		return 0, err
	}
	defer utils.UnlockFile(part)
	return io.Copy(dest, part)
}
