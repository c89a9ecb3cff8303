/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/vcs"
)

const (
	StateFile      = "REPOSITORY_STATE.txt"
	DifferenceFile = "REPOSITORY_DIFFERENCE.txt"
	FileDiffFile   = "REPOSITORY_FILE_DIFF.json"
)

// Artifacts writes report files into one directory.
type Artifacts struct {
	Dir string
}

// New returns Artifacts rooted at dir.
func New(dir string) *Artifacts {
	return &Artifacts{Dir: dir}
}

func (a *Artifacts) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifacts directory: %w", err)
	}
	path := filepath.Join(a.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// WriteState writes REPOSITORY_STATE.txt for a prepared workspace and
// returns its path.
func (a *Artifacts) WriteState(p *vcs.Prepared) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(p.Status)
	buf.WriteString("\nFile list:\n\n")
	if err := listFiles(&buf, p.Root); err != nil {
		return "", err
	}
	return a.write(StateFile, buf.Bytes())
}

func listFiles(buf *bytes.Buffer, root string) error {
	t := newTable([]string{"Mode", "Size", "Path"}, buf)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && d.Name() == vcs.SnapshotDir {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		size := ""
		if !d.IsDir() {
			size = strconv.FormatInt(info.Size(), 10)
		}
		return t.Append([]string{info.Mode().String(), size, filepath.ToSlash(rel)})
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", root, err)
	}
	return t.Render()
}

// WriteDifference writes the textual repository difference and returns its
// path. Nothing is written, and "" returned, when every part is empty.
func (a *Artifacts) WriteDifference(parts []string) (string, error) {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimRight(p, "\n"))
		}
	}
	if len(nonEmpty) == 0 {
		return "", nil
	}
	return a.write(DifferenceFile, []byte(strings.Join(nonEmpty, "\n")+"\n"))
}

// WriteFileDiffs computes one unified diff per entry of the workspace at
// root and writes them as JSON. It returns the path written, or "" when
// entries is empty.
func (a *Artifacts) WriteFileDiffs(root string, entries []vcs.DiffEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	diffs, err := FileDiffs(root, entries)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(diffs, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding file diffs: %w", err)
	}
	return a.write(FileDiffFile, append(data, '\n'))
}
