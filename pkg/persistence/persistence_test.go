package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testState struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("budget", "0xabc", "window")

	want := testState{Name: "w1", Count: 3}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	var got testState
	if err := store.Load(&got); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got != want {
		t.Errorf("round trip got=%+v want=%+v", got, want)
	}
}

func TestLoadMissingReturnsErrNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("budget", "0xabc", "window")

	var got testState
	if err := store.Load(&got); !errors.Is(err, ErrNotExists) {
		t.Fatalf("Load 不存在的 key 应返回 ErrNotExists, got %v", err)
	}
}

func TestEmptyFileTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("budget", "0xabc", "window")

	// 模拟崩溃留下的空文件
	path := store.(*JSONFileStore).filePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var got testState
	if err := store.Load(&got); !errors.Is(err, ErrNotExists) {
		t.Fatalf("空文件应视为不存在, got %v", err)
	}
}

func TestKeySanitizedForFilename(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("budget", "0xAbC:with/odd chars", "window")

	if err := store.Save(testState{Name: "x"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("应只有一个状态文件, got %d", len(entries))
	}
	name := entries[0].Name()
	for _, r := range name {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			t.Errorf("文件名包含非法字符 %q: %s", r, name)
		}
	}
}
