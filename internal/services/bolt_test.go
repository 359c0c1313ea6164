package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/MegaGrindStone/rag-web-ui/internal/services"
)

func TestBoltDBDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.db")

	db, err := services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	docs, err := db.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("Documents() on empty db = %v, want none", docs)
	}

	older := models.Document{ID: "abc123", Filename: "policy.pdf", Size: 1024, UploadedAt: now.Add(-time.Hour)}
	newer := models.Document{ID: "def456", Filename: "terms.pdf", Size: 2048, UploadedAt: now}
	for _, doc := range []models.Document{older, newer} {
		if err := db.AddDocument(ctx, doc); err != nil {
			t.Fatalf("AddDocument(%s) error = %v", doc.ID, err)
		}
	}

	docs, err = db.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(Documents()) = %d, want 2", len(docs))
	}
	if docs[0].ID != newer.ID || docs[1].ID != older.ID {
		t.Errorf("Documents() order = [%s %s], want newest first", docs[0].ID, docs[1].ID)
	}

	doc, found, err := db.Document(ctx, older.ID)
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if !found {
		t.Fatalf("Document(%s) not found", older.ID)
	}
	if doc.Filename != older.Filename || doc.Size != older.Size || !doc.UploadedAt.Equal(older.UploadedAt) {
		t.Errorf("Document() = %+v, want %+v", doc, older)
	}

	if _, found, err := db.Document(ctx, "missing"); err != nil || found {
		t.Errorf("Document(missing) = found %v, error %v, want not found", found, err)
	}

	// Uploading the same document again replaces the record.
	renamed := older
	renamed.Filename = "policy-v2.pdf"
	if err := db.AddDocument(ctx, renamed); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The registry survives a restart.
	db, err = services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() reopen error = %v", err)
	}
	defer db.Close()

	docs, err = db.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(Documents()) after reopen = %d, want 2", len(docs))
	}
	if docs[1].Filename != "policy-v2.pdf" {
		t.Errorf("replaced document filename = %q, want %q", docs[1].Filename, "policy-v2.pdf")
	}
}

func TestNewBoltDBInvalidPath(t *testing.T) {
	if _, err := services.NewBoltDB(filepath.Join(t.TempDir(), "missing", "documents.db")); err == nil {
		t.Error("NewBoltDB() with a missing directory error = nil, want error")
	}
}
