package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RenewOutputPath returns outputPath, or the first "name-(N).ext" variant
// that neither exists on disk nor is reported by inUse.
func RenewOutputPath(outputPath string, inUse func(string) bool) string {
	free := func(candidate string) bool {
		_, err := os.Stat(candidate)
		return os.IsNotExist(err) && (inUse == nil || !inUse(candidate))
	}
	if free(outputPath) {
		return outputPath
	}
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	for index := 1; ; index++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if free(candidate) {
			return candidate
		}
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// SanitizeFileName reduces name to a single safe path element. It returns ""
// when nothing usable is left, so callers can fall back to another name.
func SanitizeFileName(name string) string {
	cleaned := strings.TrimSpace(filenameRegex.ReplaceAllString(filepath.Base(name), "_"))
	if strings.Trim(cleaned, ".") == "" {
		return ""
	}
	return cleaned
}

// FallbackFileName names a download whose source offers nothing usable.
func FallbackFileName() string {
	return fmt.Sprintf("download_%d", time.Now().Unix())
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return FormatBytes(uint64(bytesPerSecond)) + "/s"
}

// TempDir returns the directory holding part files for an output path.
func TempDir(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), TempDirName)
}

// PartPath returns the deterministic part file path for a range index.
func PartPath(outputPath string, index int) string {
	return filepath.Join(TempDir(outputPath), fmt.Sprintf("%s.part%d", filepath.Base(outputPath), index))
}

func ExtractChunkID(filename string) (int, error) {
	matches := ChunkIDRegex.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return -1, fmt.Errorf("could not extract chunk ID from %s", filename)
	}
	return strconv.Atoi(matches[1])
}

// CleanParts removes every part file belonging to outputPath and drops the
// temp directory once it is empty.
func CleanParts(outputPath string) error {
	tempDir := TempDir(outputPath)
	files, err := os.ReadDir(tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	partPrefix := filepath.Base(outputPath) + ".part"
	var errs []error
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), partPrefix) {
			continue
		}
		if _, err := ExtractChunkID(file.Name()); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	removeIfEmpty(tempDir)
	return errors.Join(errs...)
}

// CleanTemp removes the whole temp directory under a storage root.
func CleanTemp(storageRoot string) error {
	tempDir := filepath.Join(storageRoot, TempDirName)
	_, err := os.Stat(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.RemoveAll(tempDir)
}

func removeIfEmpty(dir string) {
	remaining, err := os.ReadDir(dir)
	if err == nil && len(remaining) == 0 {
		os.Remove(dir)
	}
}
