// Package iomap builds the io-remap companion file for a database: a JSON
// index of every step's input and output files with paths re-rooted under
// the database directory.
package iomap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Pattern matches the per-step io map files left behind by pipeline runs.
const Pattern = "*.io.tmp"

// Entry holds the remapped input and output paths of one step.
type Entry struct {
	// Input is either a flat path list or, when the grouping flag is set,
	// a list of consecutive path groups.
	Input any `json:"input"`
	// Output is the remapped output path list.
	Output []string `json:"output"`
}

// Map is the full remap index: file id, then step id, then step name.
type Map map[string]map[string]map[string]Entry

// Options holds io map build configuration.
type Options struct {
	// MetaDir is the directory scanned for io map files.
	MetaDir string
	// Name is the database name; paths re-root under <Name>/.
	Name string
	// OutPath overrides the output location (default <MetaDir>/<Name>.conf.json).
	OutPath string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Build scans the io map files, remaps their paths and writes the JSON
// index. It returns the output path. A directory without io map files still
// produces an (empty) index.
func Build(opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Name == "" {
		return "", fmt.Errorf("database name is required")
	}

	files, err := filepath.Glob(filepath.Join(opts.MetaDir, Pattern))
	if err != nil {
		return "", fmt.Errorf("bad io map pattern: %w", err)
	}
	sort.Strings(files)

	index := make(Map)
	for _, file := range files {
		fid, sid, name, err := parseFileName(file)
		if err != nil {
			return "", err
		}

		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("cannot read io map %s: %w", file, err)
		}
		input, output, flag, err := parseContent(string(raw))
		if err != nil {
			return "", fmt.Errorf("malformed io map %s: %w", file, err)
		}

		entry := Entry{Output: remap(output, opts.Name)}
		remapped := remap(input, opts.Name)
		if flag > 0 {
			entry.Input = regroup(remapped, flag)
		} else {
			entry.Input = remapped
		}

		if index[fid] == nil {
			index[fid] = make(map[string]map[string]Entry)
		}
		if index[fid][sid] == nil {
			index[fid][sid] = make(map[string]Entry)
		}
		index[fid][sid][name] = entry
	}

	out := opts.OutPath
	if out == "" {
		out = filepath.Join(opts.MetaDir, opts.Name+".conf.json")
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot encode io map: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("cannot write io map: %w", err)
	}

	logger.Debug("io map written", slog.String("path", out), slog.Int("files", len(files)))

	return out, nil
}

// parseFileName splits <fid>.<sid>.<name>.io.tmp into its key parts.
func parseFileName(path string) (fid, sid, name string, err error) {
	base := filepath.Base(path)
	parts := strings.Split(base, ".")
	if len(parts) < 5 {
		return "", "", "", fmt.Errorf("malformed io map file name %q", base)
	}
	return parts[0], parts[1], parts[2], nil
}

// parseContent splits an io map body into input paths, output paths and the
// input grouping flag. The body format is input::output::flag with
// comma-separated path lists.
func parseContent(s string) (input, output []string, flag int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) != 3 {
		return nil, nil, 0, fmt.Errorf("expected input::output::flag, got %d sections", len(parts))
	}
	flag, err = strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("bad grouping flag %q", parts[2])
	}
	return splitPaths(parts[0]), splitPaths(parts[1]), flag, nil
}

func splitPaths(s string) []string {
	paths := []string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// remap re-roots every path under the database directory, keeping only the
// base file name.
func remap(paths []string, root string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Join(root, filepath.Base(p))
	}
	return out
}

// regroup splits paths into consecutive groups of the given size; the last
// group may be shorter.
func regroup(paths []string, size int) [][]string {
	groups := [][]string{}
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		groups = append(groups, paths[start:end])
	}
	return groups
}
