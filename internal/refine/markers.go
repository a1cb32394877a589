package refine

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Markers maps a contig id to the marker genes found on it, one entry per hit.
type Markers map[string][]string

// Hits returns the total number of marker hits.
func (m Markers) Hits() int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

// LoadMarkers reads every *.tsv file in dir. Each non-comment line holds a
// sequence name and a marker id separated by a tab; further columns are ignored.
// Fragment names are folded onto their contig. A missing directory or one without
// annotation files yields an empty set.
func LoadMarkers(dir string) (Markers, []string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "list marker files in %q", dir)
	}
	sort.Strings(files)
	m := Markers{}
	var used []string
	for _, f := range files {
		n, err := readMarkerFile(f, m)
		if err != nil {
			return nil, nil, err
		}
		if n > 0 {
			used = append(used, filepath.Base(f))
		}
	}
	return m, used, nil
}

func readMarkerFile(path string, m Markers) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open marker file")
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	n, line := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 2 || cols[0] == "" || cols[1] == "" {
			return n, errors.Errorf("%s:%d: want <sequence>\\t<marker>", filepath.Base(path), line)
		}
		contig := ContigOf(strings.TrimSpace(cols[0]))
		m[contig] = append(m[contig], strings.TrimSpace(cols[1]))
		n++
	}
	return n, errors.Wrapf(sc.Err(), "read %s", filepath.Base(path))
}
