package vault

import (
	"errors"
	"testing"
)

func testGraph() *noteGraph {
	return newNoteGraph([]Note{
		{ID: "n1", Title: "Alpha", Content: "see [[Beta]]"},
		{ID: "n2", Title: "Beta", Content: "see [[Gamma]] and [[n1]]", ParentID: "n1"},
		{ID: "n3", Title: "Gamma", Content: "terminal", ParentID: "n2"},
		{ID: "n4", Title: "Island", Content: "unlinked"},
	})
}

func TestNoteGraph_Outgoing(t *testing.T) {
	g := testGraph()

	links := g.outgoing("n2")
	if len(links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(links))
	}
	if links[0].TargetID != "n3" {
		t.Errorf("Expected title-resolved target n3, got %s", links[0].TargetID)
	}
	if links[1].TargetID != "n1" {
		t.Errorf("Expected id-resolved target n1, got %s", links[1].TargetID)
	}
}

func TestNoteGraph_Backlinks(t *testing.T) {
	g := testGraph()

	links := g.backlinks("n1")
	if len(links) != 1 || links[0].SourceID != "n2" {
		t.Errorf("Expected one backlink from n2, got %v", links)
	}
}

func TestNoteGraph_Descendants(t *testing.T) {
	g := testGraph()

	descendants := g.descendants("n1")
	if len(descendants) != 2 {
		t.Fatalf("Expected 2 descendants, got %d", len(descendants))
	}
	// Breadth order: direct child before grandchild.
	if descendants[0].ID != "n2" || descendants[1].ID != "n3" {
		t.Errorf("Expected [n2 n3], got [%s %s]", descendants[0].ID, descendants[1].ID)
	}
}

func TestNoteGraph_FindPath(t *testing.T) {
	g := testGraph()

	path, err := g.findPath("n1", "n3")
	if err != nil {
		t.Fatalf("findPath failed: %v", err)
	}
	want := []string{"n1", "n2", "n3"}
	if len(path) != len(want) {
		t.Fatalf("Expected %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], path[i])
		}
	}

	if _, err := g.findPath("n1", "n4"); !errors.Is(err, ErrNoPath) {
		t.Errorf("Expected ErrNoPath, got %v", err)
	}
}
