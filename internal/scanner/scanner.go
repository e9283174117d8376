// Package scanner walks a project tree, classifies and prioritizes its
// files, and reads the most relevant ones for planning prompts.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/logging"
)

// File categories, used for prioritization.
const (
	CategoryConfig     = "config"
	CategoryEntryPoint = "entry_point"
	CategoryRouting    = "routing"
	CategoryModel      = "model"
	CategoryTest       = "test"
	CategoryOther      = "other"
)

var categoryPatterns = []struct {
	category string
	patterns []string
}{
	{CategoryConfig, []string{
		"package.json", "requirements.txt", "pyproject.toml", "Cargo.toml",
		"go.mod", "Gemfile", "tsconfig.json", "Makefile", ".env.example",
		"docker-compose.yml", "docker-compose.yaml", "Dockerfile",
	}},
	{CategoryEntryPoint, []string{
		"main.py", "app.py", "index.py", "launcher.py", "server.py",
		"main.ts", "index.ts", "app.ts", "main.js", "index.js", "app.js",
		"main.go",
	}},
	{CategoryRouting, []string{"routes", "router", "urls", "endpoints", "api"}},
	{CategoryModel, []string{"models", "schemas", "entities", "types"}},
	{CategoryTest, []string{"test_", "_test.", ".test.", ".spec.", "tests/"}},
}

var categoryScores = map[string]int{
	CategoryConfig:     90,
	CategoryEntryPoint: 80,
	CategoryRouting:    70,
	CategoryModel:      60,
	CategoryTest:       20,
	CategoryOther:      10,
}

// File is one scanned project file.
type File struct {
	Path     string `yaml:"path"`
	FullPath string `yaml:"-"`
	Size     int64  `yaml:"size"`
	Ext      string `yaml:"ext"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Scanner walks project trees within configured limits.
type Scanner struct {
	cfg config.ScannerConfig
	log *logging.Logger
}

// New creates a Scanner. logger may be nil.
func New(cfg config.ScannerConfig, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{cfg: cfg, log: logger}
}

// Scan walks projectDir, skipping ignored directories and extensions.
// Paths in the result are relative to projectDir.
func (s *Scanner) Scan(projectDir string) ([]File, error) {
	ignoredDirs := make(map[string]bool, len(s.cfg.IgnoredDirs))
	for _, d := range s.cfg.IgnoredDirs {
		ignoredDirs[d] = true
	}
	ignoredExts := make(map[string]bool, len(s.cfg.IgnoredExts))
	for _, e := range s.cfg.IgnoredExts {
		ignoredExts[strings.ToLower(e)] = true
	}

	var files []File
	err := filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == projectDir {
				return nil
			}
			if ignoredDirs[name] || strings.HasSuffix(name, ".egg-info") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ignoredExts[ext] {
			return nil
		}
		rel, relErr := filepath.Rel(projectDir, path)
		if relErr != nil {
			return relErr
		}
		var size int64
		if info, infoErr := d.Info(); infoErr == nil {
			size = info.Size()
		}
		f := File{Path: rel, FullPath: path, Size: size, Ext: ext, Name: name}
		f.Category = Classify(f)
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", projectDir, err)
	}
	s.log.Info("scanned project", "dir", projectDir, "files", len(files))
	return files, nil
}

// Classify assigns a file to a category by name and path patterns.
func Classify(f File) string {
	name := strings.ToLower(f.Name)
	path := strings.ToLower(filepath.ToSlash(f.Path))
	for _, cat := range categoryPatterns {
		for _, p := range cat.patterns {
			if name == strings.ToLower(p) || strings.Contains(path, strings.ToLower(p)) {
				return cat.category
			}
		}
	}
	return CategoryOther
}

// Prioritize orders files by relevance: configured priority names first,
// then category weight, boosted by word overlap with the parsed request.
// The sort is stable so equal scores keep scan order.
func (s *Scanner) Prioritize(files []File, parsedRequest string) []File {
	priorityNames := make(map[string]bool, len(s.cfg.PriorityFiles))
	for _, p := range s.cfg.PriorityFiles {
		priorityNames[strings.ToLower(p)] = true
	}
	reqWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(parsedRequest)) {
		reqWords[w] = true
	}

	score := func(f File) int {
		total := 0
		if priorityNames[strings.ToLower(f.Name)] {
			total += 100
		}
		total += categoryScores[f.Category]
		if len(reqWords) > 0 {
			normalized := strings.NewReplacer("/", " ", "_", " ", ".", " ").Replace(strings.ToLower(f.Path))
			for _, w := range strings.Fields(normalized) {
				if reqWords[w] {
					total += 15
				}
			}
		}
		return total
	}

	ordered := make([]File, len(files))
	copy(ordered, files)
	sort.SliceStable(ordered, func(i, j int) bool {
		return score(ordered[i]) > score(ordered[j])
	})
	return ordered
}

// ReadFiles reads up to maxCount files (config default when 0), truncating
// oversized ones. Unreadable files get an error placeholder instead of
// aborting the scan.
func (s *Scanner) ReadFiles(files []File, maxCount int) map[string]string {
	limit := maxCount
	if limit <= 0 {
		limit = s.cfg.MaxFilesToRead
	}
	if limit > len(files) {
		limit = len(files)
	}

	contents := make(map[string]string, limit)
	for _, f := range files[:limit] {
		data, err := os.ReadFile(f.FullPath)
		if err != nil {
			s.log.Warn("cannot read file", "path", f.Path, "error", err)
			contents[f.Path] = fmt.Sprintf("[error reading file: %v]", err)
			continue
		}
		if s.cfg.MaxFileSizeBytes > 0 && len(data) > s.cfg.MaxFileSizeBytes {
			contents[f.Path] = string(data[:s.cfg.MaxFileSizeBytes]) + "\n... (truncated)"
			continue
		}
		contents[f.Path] = string(data)
	}
	s.log.Info("read files", "count", len(contents))
	return contents
}

// FileTree renders the scanned files as annotated lines, sorted by path.
func FileTree(files []File) string {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	for i, f := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s [%s] (%db)", f.Path, f.Category, f.Size)
	}
	return b.String()
}
