package fileInfo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileNode describes one entry in a transfer folder listing.
type FileNode struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Path     string `json:"-"`
}

// ListDir enumerates the direct children of path, skipping dot-prefixed
// entries. It never descends into subdirectories: a directory entry is
// reported with the size os.FileInfo gives the directory itself (a
// system-dependent value), never the recursive size of its contents.
//
// Entries are returned in directory order as read from the filesystem,
// which on most platforms is lexical but is not guaranteed to be.
func ListDir(dir string) ([]FileNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	nodes := make([]FileNode, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		node := FileNode{
			Name:  entry.Name(),
			IsDir: entry.IsDir(),
			Size:  info.Size(),
			Path:  path,
		}
		if !node.IsDir {
			if mime, err := mimetype.DetectFile(path); err == nil {
				node.MimeType = mime.String()
			} else {
				node.MimeType = "application/octet-stream"
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
