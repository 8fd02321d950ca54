package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
)

func TestConnect_InMemory(t *testing.T) {
	cfg := Config{
		URL:         ":memory:",
		MaxIdleConn: 1,
		MaxOpenConn: 4,
		Debug:       false,
	}

	db, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if db == nil {
		t.Fatal("Expected non-nil db")
	}
	defer func() { _ = Close(db) }()

	var result int
	if err := db.Raw("SELECT 1").Scan(&result).Error; err != nil {
		t.Errorf("Failed to query database: %v", err)
	}
	if result != 1 {
		t.Errorf("Expected 1, got %d", result)
	}

	// Tables are migrated on connect
	if !db.Migrator().HasTable(&models.PatchFixture{}) {
		t.Error("Expected patch_fixtures table")
	}
	if !db.Migrator().HasTable(&models.Setting{}) {
		t.Error("Expected settings table")
	}
}

func TestConnect_WithFilePrefix(t *testing.T) {
	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "test.db")
	cfg := Config{
		URL:         "file:" + dbPath,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	}

	db, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() { _ = Close(db) }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Expected database file to be created")
	}
}

func TestConnect_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	nestedPath := filepath.Join(tmpDir, "nested", "dir", "test.db")
	cfg := Config{
		URL:         nestedPath,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	}

	db, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() { _ = Close(db) }()

	if _, err := os.Stat(filepath.Dir(nestedPath)); os.IsNotExist(err) {
		t.Error("Expected nested directory to be created")
	}
}

func TestConnect_DebugMode(t *testing.T) {
	cfg := Config{
		URL:         ":memory:",
		MaxIdleConn: 1,
		MaxOpenConn: 1,
		Debug:       true,
	}

	db, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	_ = Close(db)
}

func TestConnect_EmptyURL(t *testing.T) {
	if _, err := Connect(Config{URL: "file:"}, nil); err == nil {
		t.Error("Expected error for empty url")
	}
}

func TestClose_NilDB(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close with nil DB should not error: %v", err)
	}
}
