package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSafeJoin(t *testing.T) {
	root := filepath.Join("out", "dir")

	tests := []struct {
		name    string
		parts   []string
		want    string
		wantErr bool
	}{
		{
			name:  "nested object",
			parts: []string{"Sentinel-2/S2A.SAFE", "GRANULE/B01.jp2"},
			want:  filepath.Join(root, "Sentinel-2", "S2A.SAFE", "GRANULE", "B01.jp2"),
		},
		{
			name:  "dot segments inside root",
			parts: []string{"a/./b", "../c.xml"},
			want:  filepath.Join(root, "a", "c.xml"),
		},
		{
			name:    "parent escape",
			parts:   []string{"product", "../../etc/passwd"},
			wantErr: true,
		},
		{
			name:    "empty",
			parts:   []string{"", ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoin(root, tt.parts...)
			if tt.wantErr {
				if !errors.Is(err, ErrPathEscapes) {
					t.Errorf("SafeJoin() error = %v, want ErrPathEscapes", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SafeJoin() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SafeJoin() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	tempDir := t.TempDir()

	nested := filepath.Join(tempDir, "a", "b")
	if err := EnsureDir(nested); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if info, err := os.Stat(nested); err != nil || !info.IsDir() {
		t.Errorf("directory was not created: %v", err)
	}

	file := filepath.Join(tempDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := EnsureDir(file); err == nil {
		t.Error("EnsureDir() on a regular file should fail")
	}
}

func TestMatchesRemote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.safe")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	modTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("Failed to set times: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		size    int64
		modTime time.Time
		want    bool
	}{
		{"same size and time", path, 11, modTime, true},
		{"sub-second difference", path, 11, modTime.Add(300 * time.Millisecond), true},
		{"size differs", path, 12, modTime, false},
		{"time differs", path, 11, modTime.Add(time.Hour), false},
		{"zero remote time", path, 11, time.Time{}, false},
		{"missing file", path + ".missing", 11, modTime, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesRemote(tt.path, tt.size, tt.modTime); got != tt.want {
				t.Errorf("MatchesRemote() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanupTempFile(t *testing.T) {
	tempFile, err := os.CreateTemp("", "cleanup-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tempFile.Close()
	tempPath := tempFile.Name()

	err = CleanupTempFile(tempPath)
	if err != nil {
		t.Errorf("CleanupTempFile() error = %v", err)
	}

	_, err = os.Stat(tempPath)
	if !os.IsNotExist(err) {
		t.Errorf("File was not removed: %v", err)
	}

	err = CleanupTempFile(tempPath)
	if err != nil {
		t.Errorf("CleanupTempFile() on non-existent file error = %v", err)
	}

	err = CleanupTempFile("")
	if err != nil {
		t.Errorf("CleanupTempFile() with empty path error = %v", err)
	}
}
