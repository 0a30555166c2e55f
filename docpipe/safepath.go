package docpipe

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a tool path resolves outside MCPRoot.
var ErrPathEscape = errors.New("path escapes the mcp root")

// resolveToolPath maps a path received over MCP onto the filesystem. Relative
// paths are taken from MCPRoot; absolute paths must already lie under it.
func (p *Pipeline) resolveToolPath(userPath string) (string, error) {
	if p.cfg.MCPRoot == "" {
		return userPath, nil
	}
	return confine(p.cfg.MCPRoot, userPath)
}

// confine joins userPath to base and rejects results outside base. Symlinks
// are not followed.
func confine(base, userPath string) (string, error) {
	base = filepath.Clean(base)
	joined := filepath.Clean(userPath)
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(base, joined)
	}
	rel, err := filepath.Rel(base, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, userPath)
	}
	return joined, nil
}
