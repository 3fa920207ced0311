package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Parser converts a raw statement file into parsed documents.
type Parser interface {
	Parse(data []byte) (*Statement, error)
	Format() string
}

// Statement is the parser's output for one file.
type Statement struct {
	Format         string
	Encoding       string // "windows-1251" or "utf-8"
	CompanyAccount string // РасчСчет from the header, if valid
	Documents      []model.ParsedDocument
	Stats          model.ParseStats
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a statement file waiting in the inbox.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ErrUnknownFormat is returned by Registry.Parse for an unregistered format.
var ErrUnknownFormat = errors.New("unknown statement format")

// Parse parses data with the parser registered for format.
func (r *Registry) Parse(format string, data []byte) (*Statement, error) {
	p := r.Get(format)
	if p == nil {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownFormat, format, strings.Join(r.Formats(), ", "))
	}
	return p.Parse(data)
}

// Formats lists the registered formats in order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ClientBankParser{})
	return r
}

// statementExt is the extension 1C client-bank exports are saved with.
const statementExt = ".txt"

// Scan returns statement files in inboxDir. A missing directory yields no
// files. Subdirectories (including the processed one) are ignored.
func Scan(inboxDir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), statementExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(inboxDir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves fileName from inboxDir into processedDir.
func MarkProcessed(inboxDir, processedDir, fileName string) error {
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	src := filepath.Join(inboxDir, fileName)
	dst := filepath.Join(processedDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
