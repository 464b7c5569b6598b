package main

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
)

func TestOutputName(t *testing.T) {
	tests := []struct {
		original string
		format   imaging.Format
		want     string
	}{
		{"photo.jpeg", imaging.JPEG, "edited-photo.jpg"},
		{"photo.jpg", imaging.JPEG, "edited-photo.jpg"},
		{"shot.png", imaging.PNG, "edited-shot.png"},
		{"noext", imaging.JPEG, "edited-noext.jpg"},
	}
	for _, tt := range tests {
		if got := outputName("edited-", tt.original, tt.format); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.original, got, tt.want)
		}
	}
}

func TestBuildArchive(t *testing.T) {
	artifacts := []Artifact{
		{Name: "edited-a.jpg", Data: []byte("aaa")},
		{Name: "edited-b.png", Data: []byte("bbbb")},
	}

	var buf bytes.Buffer
	if err := BuildArchive(&buf, artifacts); err != nil {
		t.Fatalf("BuildArchive() error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"edited-a.jpg", "edited-b.png"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entry names mismatch (-want +got):\n%s", diff)
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bbbb" {
		t.Errorf("entry content = %q, want %q", data, "bbbb")
	}
}

func TestBuildArchiveEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := BuildArchive(&buf, nil); err != nil {
		t.Fatalf("BuildArchive() error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(zr.File) != 0 {
		t.Errorf("empty archive has %d entries", len(zr.File))
	}
}
