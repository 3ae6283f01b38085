package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(0); got != "0 B/s" {
		t.Errorf("FormatSpeed(0) = %q", got)
	}
	if got := FormatSpeed(2048); got != "2.00 KB/s" {
		t.Errorf("FormatSpeed(2048) = %q", got)
	}
}

func TestPartPath(t *testing.T) {
	got := PartPath(filepath.Join("downloads", "file.iso"), 3)
	want := filepath.Join("downloads", "temp", "file.iso.part3")
	if got != want {
		t.Errorf("PartPath = %q, want %q", got, want)
	}
	id, err := ExtractChunkID(got)
	if err != nil || id != 3 {
		t.Errorf("ExtractChunkID(%q) = %d, %v", got, id, err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"../../etc/pass*wd", "pass_wd"},
		{"report 2024.pdf", "report 2024.pdf"},
		{".bashrc", ".bashrc"},
		{"..", ""},
		{".", ""},
		{"", ""},
		{"a/..", ""},
		{"...", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.input); got != tt.expected {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{"Authorization: Basic abc", "broken", "X-Test:1"})
	if len(got) != 2 || got["Authorization"] != "Basic abc" || got["X-Test"] != "1" {
		t.Errorf("ParseHeaderArgs = %v", got)
	}
}

func TestCleanParts(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(root, "movie.mkv")
	if err := os.MkdirAll(TempDir(output), 0755); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := os.WriteFile(PartPath(output, i), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	otherOutput := filepath.Join(root, "other.bin")
	other := PartPath(otherOutput, 0)
	if err := os.WriteFile(other, []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CleanParts(output); err != nil {
		t.Fatalf("CleanParts: %v", err)
	}
	for i := range 3 {
		if _, err := os.Stat(PartPath(output, i)); !os.IsNotExist(err) {
			t.Errorf("part %d still exists", i)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated part removed: %v", err)
	}

	if err := CleanParts(otherOutput); err != nil {
		t.Fatalf("CleanParts: %v", err)
	}
	if _, err := os.Stat(TempDir(output)); !os.IsNotExist(err) {
		t.Error("expected empty temp dir to be removed")
	}
}

func TestCleanPartsMissingDir(t *testing.T) {
	if err := CleanParts(filepath.Join(t.TempDir(), "nothing.bin")); err != nil {
		t.Errorf("CleanParts on missing dir: %v", err)
	}
}

func TestRenewOutputPath(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "file.tar")
	if got := RenewOutputPath(target, nil); got != target {
		t.Errorf("free path renamed to %s", got)
	}
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	claimed := filepath.Join(root, "file-(1).tar")
	got := RenewOutputPath(target, func(p string) bool { return p == claimed })
	if want := filepath.Join(root, "file-(2).tar"); got != want {
		t.Errorf("RenewOutputPath = %s, want %s", got, want)
	}
}
