package indexer

import (
	"reflect"
	"testing"
	"time"

	"deckview/internal/doctypes"
)

func file(rel string) SourceFile {
	name := rel
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			name = rel[i+1:]
			break
		}
	}
	return SourceFile{Name: name, RelPath: rel, Kind: doctypes.KindForPath(rel), ModTime: time.Unix(0, 0)}
}

func TestBuildTree(t *testing.T) {
	files := []SourceFile{
		file("b.pdf"),
		file("x/y/z.pptx"),
		file("B.pdf"),
		file("a/c.md"),
		file("x/w.docx"),
	}

	root, folders := buildTree("library", files)

	if folders != 3 {
		t.Errorf("folders = %d, want 3", folders)
	}
	if got, want := names(root), []string{"a", "x", "B.pdf", "b.pdf"}; !reflect.DeepEqual(got, want) {
		t.Errorf("root children = %v, want %v", got, want)
	}

	x := root.Children[1]
	if got, want := names(x), []string{"y", "w.docx"}; !reflect.DeepEqual(got, want) {
		t.Errorf("x children = %v, want %v", got, want)
	}
	if x.Children[0].Path != "x/y" {
		t.Errorf("nested dir path = %s", x.Children[0].Path)
	}
}

func TestLessNode(t *testing.T) {
	dir := &TreeNode{Name: "zeta", Type: NodeDir}
	tests := []struct {
		name string
		a, b *TreeNode
		want bool
	}{
		{"DirBeforeFile", dir, &TreeNode{Name: "alpha", Type: NodeFile}, true},
		{"FileAfterDir", &TreeNode{Name: "alpha", Type: NodeFile}, dir, false},
		{"CaseInsensitive", &TreeNode{Name: "apple", Type: NodeFile}, &TreeNode{Name: "Banana", Type: NodeFile}, true},
		{"TieBrokenByExactName", &TreeNode{Name: "Deck", Type: NodeFile}, &TreeNode{Name: "deck", Type: NodeFile}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lessNode(tt.a, tt.b); got != tt.want {
				t.Errorf("lessNode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureOf(t *testing.T) {
	a := []SourceFile{{RelPath: "a.pdf", Fingerprint: "f1"}}
	b := []SourceFile{{RelPath: "a.pdf", Fingerprint: "f2"}}

	if signatureOf(a) == signatureOf(b) {
		t.Error("Expected different signatures for different fingerprints")
	}
	if signatureOf(a) != signatureOf([]SourceFile{{RelPath: "a.pdf", Fingerprint: "f1"}}) {
		t.Error("Expected equal signatures for equal input")
	}
}
