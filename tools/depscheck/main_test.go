package main

import (
	"strings"
	"testing"
)

func TestFindViolations(t *testing.T) {
	pkgs := []packageInfo{
		{ImportPath: "hexhold/server/internal/roads", Imports: []string{"hexhold/server/internal/hexgrid", "hexhold/server/internal/storage/sqlite"}},
		{ImportPath: "hexhold/server/internal/storage/sqlite", Imports: []string{"hexhold/server/internal/roads", "modernc.org/sqlite"}},
		{ImportPath: "hexhold/server/internal/app", Imports: []string{"hexhold/server/internal/storage/sqlite", "hexhold/server/internal/net"}},
		{ImportPath: "hexhold/server/internal/net/ws", Imports: []string{"hexhold/server/internal/app"}},
		{ImportPath: "hexhold/server/logging/actions", Imports: []string{"hexhold/server/logging"}},
	}

	got := findViolations(pkgs, layering)
	want := []string{
		"hexhold/server/internal/net/ws -> hexhold/server/internal/app",
		"hexhold/server/internal/roads -> hexhold/server/internal/storage/sqlite",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected violations:\n%s", strings.Join(got, "\n"))
	}
}

func TestDecodePackages(t *testing.T) {
	input := `{"ImportPath":"a","Imports":["b"]}
{"ImportPath":"b"}`
	pkgs, err := decodePackages(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(pkgs) != 2 || pkgs[0].Imports[0] != "b" {
		t.Fatalf("unexpected packages %+v", pkgs)
	}
}
