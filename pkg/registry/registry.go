package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/smutt/fediscripts/fedi"
)

// Header is the comment line written at the top of every consolidated file.
const Header = "#domain,first_seen,last_seen,hits"

// ParseError contains the line number, line and parse error for a record
// that could not be loaded.
type ParseError struct {
	LineNumber int
	Line       string
	Err        error
}

// Parse reads a consolidated instance list, one record per line in
// domain,first_seen,last_seen,hits form. Blank lines and lines starting
// with # are skipped. Malformed records are reported as ParseErrors and
// skipped, they never abort the load.
func Parse(in io.Reader) (map[string]*fedi.Instance, []*ParseError) {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)

	instances := make(map[string]*fedi.Instance, 0)
	parseErrors := make([]*ParseError, 0)
	idx := 0

	for scanner.Scan() {
		idx++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ins, err := parseRecord(line)
		if err != nil {
			parseErrors = append(parseErrors, &ParseError{LineNumber: idx, Line: line, Err: err})
			continue
		}
		instances[ins.Domain] = ins
	}
	return instances, parseErrors
}

func parseRecord(line string) (*fedi.Instance, error) {
	toks := strings.Split(line, ",")
	if len(toks) != 4 {
		return nil, errors.Errorf("expected 4 fields got %d", len(toks))
	}

	firstSeen, err := strconv.ParseInt(strings.TrimSpace(toks[1]), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "first_seen")
	}
	lastSeen, err := strconv.ParseInt(strings.TrimSpace(toks[2]), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "last_seen")
	}
	hits, err := strconv.Atoi(strings.TrimSpace(toks[3]))
	if err != nil {
		return nil, errors.Wrap(err, "hits")
	}
	if hits < 0 {
		return nil, errors.New("negative hit count")
	}
	if firstSeen > lastSeen {
		return nil, errors.New("first_seen after last_seen")
	}

	ins, err := fedi.NewInstance(strings.TrimSpace(toks[0]), firstSeen)
	if err != nil {
		return nil, err
	}
	ins.LastSeen = lastSeen
	ins.Hits = hits
	return ins, nil
}

// LoadFile loads a consolidated file from disk. A missing or unreadable
// file yields an empty registry. Per-record errors are logged and skipped.
func LoadFile(path string) map[string]*fedi.Instance {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("unable to open input file")
		return make(map[string]*fedi.Instance, 0)
	}
	defer f.Close()

	instances, parseErrors := Parse(f)
	for _, pe := range parseErrors {
		log.Warn().Str("path", path).Int("line", pe.LineNumber).Err(pe.Err).Msg("skipping bad record")
	}
	return instances
}

// Save writes a consolidated file: header first, then one record per line
// sorted lexicographically by domain.
func Save(out io.Writer, instances map[string]*fedi.Instance) error {
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintln(w, Header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, ins := range Sorted(instances) {
		if _, err := fmt.Fprintln(w, ins.Record()); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
	return w.Flush()
}

// SaveFile writes a consolidated file to path, failing with
// fedi.ErrNotWritable before any bytes are written if the file or its
// parent directory is not writable.
func SaveFile(path string, instances map[string]*fedi.Instance) error {
	if err := CheckWritable(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(fedi.ErrNotWritable, path)
	}
	defer f.Close()
	return Save(f, instances)
}

// CheckWritable reports fedi.ErrNotWritable if path (or its parent
// directory, when the file does not exist yet) cannot be written. Callers
// use it to fail fast before doing any network work.
func CheckWritable(path string) error {
	if _, err := os.Stat(path); err == nil {
		if unix.Access(path, unix.W_OK) != nil {
			return errors.Wrap(fedi.ErrNotWritable, path)
		}
		return nil
	}

	dir := filepath.Dir(path)
	if unix.Access(dir, unix.W_OK) != nil {
		return errors.Wrap(fedi.ErrNotWritable, dir)
	}
	return nil
}

// Merge returns the union of two registries. Overlapping domains combine
// hit counts and widen the observation interval to cover both.
func Merge(a, b map[string]*fedi.Instance) map[string]*fedi.Instance {
	merged := make(map[string]*fedi.Instance, len(a)+len(b))
	for domain, ins := range a {
		clone := *ins
		merged[domain] = &clone
	}
	for domain, ins := range b {
		if existing, ok := merged[domain]; ok {
			existing.Combine(ins.Hits, ins.FirstSeen, ins.LastSeen)
			continue
		}
		clone := *ins
		merged[domain] = &clone
	}
	return merged
}

// FilterMinHits returns the subset of instances with at least minHits hits.
func FilterMinHits(instances map[string]*fedi.Instance, minHits int) map[string]*fedi.Instance {
	filtered := make(map[string]*fedi.Instance, len(instances))
	for domain, ins := range instances {
		if ins.Hits >= minHits {
			filtered[domain] = ins
		}
	}
	return filtered
}

// Sorted returns the instances ordered lexicographically by domain.
func Sorted(instances map[string]*fedi.Instance) []*fedi.Instance {
	sorted := make([]*fedi.Instance, 0, len(instances))
	for _, ins := range instances {
		sorted = append(sorted, ins)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Domain < sorted[j].Domain
	})
	return sorted
}
