// Package meta implements the C9 metadata-exchange handlers: server-info
// request/response and the non-recursive folder listing.
//
// Grounded on pkg/fileInfo/fileNode.go (mimetype detection, rewritten
// non-recursive per spec.md's "no directory recursion in listings"
// non-goal) and pkg/discovery/service.go's ServerInfo field shape.
package meta

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kvothe17/peerengine/internal/util"
	"github.com/kvothe17/peerengine/pkg/fileInfo"
)

// ServerInfo is a peer's identity, per spec.md §3. Two ServerInfos are
// equal when (SessionIP, Port) match — see Equal.
type ServerInfo struct {
	Name           string
	SessionIP      string
	LocalIP        string
	PublicIP       string
	Port           uint32
	TransferFolder string
}

// Equal implements the identity rule from spec.md §3.
func (s ServerInfo) Equal(o ServerInfo) bool {
	return s.SessionIP == o.SessionIP && s.Port == o.Port
}

// ListResult is the outcome of listing a folder for a FileListRequest.
type ListResult struct {
	// Entries is nil when the folder is missing; empty-but-non-nil when
	// the folder exists but has no eligible entries.
	Entries    []fileInfo.FileNode
	NotFound   bool
	MimeByPath map[string]string // local-only enrichment, see SPEC_FULL.md §3
}

// ListFolder enumerates target directly (no recursion), skipping
// dot-prefixed entries, per spec.md §4.8.
func ListFolder(target string) (ListResult, error) {
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return ListResult{NotFound: true}, nil
		}
		return ListResult{}, err
	}

	nodes, err := fileInfo.ListDir(target)
	if err != nil {
		return ListResult{}, err
	}

	mimeByPath := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if !n.IsDir {
			mimeByPath[n.Path] = n.MimeType
		}
	}
	return ListResult{Entries: nodes, MimeByPath: mimeByPath}, nil
}

// EncodeList renders entries into the wire's "*"-and-"|"-delimited list
// format, per spec.md §6. Paths containing "*" or "|" are not escaped —
// this is a known, spec-documented protocol weakness (see DESIGN.md).
func EncodeList(entries []fileInfo.FileNode) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Name+"|"+strconv.FormatInt(e.Size, 10))
	}
	return strings.Join(parts, "*")
}

// DecodeList parses the wire list format back into (path, size) pairs, the
// counterpart a requesting peer uses after a FileListResponse arrives.
func DecodeList(list string) ([]ListEntry, error) {
	if list == "" {
		return nil, nil
	}
	rawEntries := strings.Split(list, "*")
	out := make([]ListEntry, 0, len(rawEntries))
	for _, raw := range rawEntries {
		fields := strings.SplitN(raw, "|", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("meta: malformed list entry %q", raw)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("meta: malformed size in entry %q: %w", raw, err)
		}
		out = append(out, ListEntry{Path: fields[0], Size: size})
	}
	return out, nil
}

// ListEntry is one decoded (path, size) pair from a FileListResponse.
type ListEntry struct {
	Path string
	Size int64
}

// CheckFolder reports whether folder exists and is a directory. ListFolder
// does its own os.Stat for the RequestedFolderDoesNotExist branch of C9 and
// does not call this.
func CheckFolder(folder string) (exists, isDir bool, err error) {
	return util.CheckDirectory(folder)
}
