package indexer

import (
	"path"
	"sort"
	"strings"
	"time"

	"deckview/internal/doctypes"
	"deckview/internal/fingerprint"
)

// Node types.
const (
	NodeDir  = "dir"
	NodeFile = "file"
)

// SourceFile is one library file of the current scan.
type SourceFile struct {
	ID          fingerprint.LogicalID   `json:"id"`
	Name        string                  `json:"name"`
	RelPath     string                  `json:"path"`
	AbsPath     string                  `json:"-"`
	Kind        doctypes.Kind           `json:"doc_type"`
	Size        int64                   `json:"size"`
	ModTime     time.Time               `json:"mtime"`
	Fingerprint fingerprint.Fingerprint `json:"-"`
}

// TreeNode is a directory or file in the library tree. Trees returned by the
// indexer are shared and must not be modified.
type TreeNode struct {
	Name     string                `json:"name"`
	Path     string                `json:"path"`
	Type     string                `json:"type"`
	ID       fingerprint.LogicalID `json:"id,omitempty"`
	Kind     doctypes.Kind         `json:"doc_type,omitempty"`
	Size     int64                 `json:"size,omitempty"`
	ModTime  float64               `json:"mtime,omitempty"`
	Children []*TreeNode           `json:"children,omitempty"`
}

// buildTree arranges files under a root directory node named rootName.
// Directories without files never appear, and every level is sorted:
// directories first, then case-insensitive name, then exact name.
func buildTree(rootName string, files []SourceFile) (*TreeNode, int) {
	root := &TreeNode{Name: rootName, Path: "", Type: NodeDir}
	dirs := map[string]*TreeNode{"": root}

	var dirFor func(rel string) *TreeNode
	dirFor = func(rel string) *TreeNode {
		if rel == "." {
			rel = ""
		}
		if n, ok := dirs[rel]; ok {
			return n
		}
		parent := dirFor(path.Dir(rel))
		n := &TreeNode{Name: path.Base(rel), Path: rel, Type: NodeDir}
		parent.Children = append(parent.Children, n)
		dirs[rel] = n
		return n
	}

	for i := range files {
		f := &files[i]
		parent := dirFor(path.Dir(f.RelPath))
		parent.Children = append(parent.Children, &TreeNode{
			Name:    f.Name,
			Path:    f.RelPath,
			Type:    NodeFile,
			ID:      f.ID,
			Kind:    f.Kind,
			Size:    f.Size,
			ModTime: float64(f.ModTime.UnixNano()) / 1e9,
		})
	}

	sortTree(root)
	return root, len(dirs) - 1
}

func sortTree(n *TreeNode) {
	sort.Slice(n.Children, func(i, j int) bool {
		return lessNode(n.Children[i], n.Children[j])
	})
	for _, c := range n.Children {
		if c.Type == NodeDir {
			sortTree(c)
		}
	}
}

func lessNode(a, b *TreeNode) bool {
	if (a.Type == NodeDir) != (b.Type == NodeDir) {
		return a.Type == NodeDir
	}
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	return a.Name < b.Name
}

// sortFiles orders files by relative path so scans of an unchanged tree
// yield identical lists.
func sortFiles(files []SourceFile) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
}
