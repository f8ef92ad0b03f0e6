package media

import (
	"path/filepath"
	"sort"

	"github.com/yoockh/madprep/internal/analysis"
)

// dirSource serves frames extracted to disk, reading each image only when
// the classifier asks for it.
type dirSource struct {
	paths []string
	pos   int
}

func newDirSource(paths []string) *dirSource {
	return &dirSource{paths: paths}
}

func (d *dirSource) Next() (analysis.Frame, bool) {
	if d.pos >= len(d.paths) {
		return analysis.Frame{}, false
	}
	p := d.paths[d.pos]
	d.pos++
	return analysis.Frame{Index: d.pos, Path: p}, true
}

func (d *dirSource) Err() error { return nil }

// listFrames returns frame files in decode order. ffmpeg numbers them with
// zero padding, so lexical order is decode order.
func listFrames(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
