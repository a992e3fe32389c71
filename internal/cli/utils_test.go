package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func TestWriteAnswer_JSON(t *testing.T) {
	ans := &models.Answer{
		Content:    "This appears to be a lease agreement.",
		DocumentID: "doc-1",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, ans, OutputJSON); err != nil {
		t.Fatalf("WriteAnswer failed: %v", err)
	}
	var decoded models.Answer
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Content != ans.Content || decoded.DocumentID != ans.DocumentID {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	ans := &models.Answer{Content: "Twelve months.", DocumentID: "doc-1"}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, ans, OutputText); err != nil {
		t.Fatalf("WriteAnswer failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Twelve months.") || !strings.Contains(out, "doc-1") {
		t.Errorf("output = %q", out)
	}
}

func TestWriteDocuments_Text(t *testing.T) {
	docs := []*models.Document{
		{ID: "a", Name: "lease.pdf", Size: 1024, CreatedAt: time.Now()},
		{ID: "b", Name: "invoice.pdf", Size: 2048, CreatedAt: time.Now()},
	}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, OutputText); err != nil {
		t.Fatalf("WriteDocuments failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "lease.pdf") || !strings.Contains(out, "invoice.pdf") {
		t.Errorf("output = %q", out)
	}
}

func TestWriteDocuments_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, nil, OutputText); err != nil {
		t.Fatalf("WriteDocuments failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No documents") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: %v %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != OutputText {
		t.Errorf("empty: %v %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("maxLen 0 should not truncate, got %q", got)
	}
}
