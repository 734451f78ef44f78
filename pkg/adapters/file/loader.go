// Package file loads flow definitions from JSON and YAML files on disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file types the loader reads.
var Extensions = []string{".json", ".yaml", ".yml"}

// Loader implements ports.FlowLoader over a directory of flow files.
// Each file holds one flow; its id is the "id" field, or the file name
// without extension when the field is empty.
// The directory is rescanned on every call, so edits are picked up without a restart.
type Loader struct {
	dir string
}

// NewLoader creates a loader for dir.
func NewLoader(dir string) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid flow directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid flow directory: %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return &Loader{dir: abs}, nil
}

// Dir returns the absolute directory served by the loader.
func (l *Loader) Dir() string {
	return l.dir
}

// Load returns the definition of flowID.
func (l *Loader) Load(ctx context.Context, flowID string) (*domain.Definition, error) {
	paths, err := l.files()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if def.ID == flowID {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
}

// List returns the ids of all flows in the directory.
func (l *Loader) List(_ context.Context) ([]string, error) {
	paths, err := l.files()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		def, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, def.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isFlowFile(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(l.dir, e.Name()))
	}
	return out, nil
}

func isFlowFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, x := range Extensions {
		if ext == x {
			return true
		}
	}
	return false
}

// fileDefinition mirrors the editor export. JSON is valid YAML, so one decoder
// reads both formats.
type fileDefinition struct {
	domain.Flow `yaml:",inline"`
	Nodes       []fileNode `yaml:"nodes"`
	Edges       []fileEdge `yaml:"edges"`
}

type fileNode struct {
	NodeID   string          `yaml:"nodeId"`
	NodeType domain.NodeType `yaml:"nodeType"`
	Data     map[string]any  `yaml:"data"`
}

type fileEdge struct {
	SourceNodeID string `yaml:"sourceNodeId"`
	TargetNodeID string `yaml:"targetNodeId"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
}

// LoadFile parses a single flow file.
func LoadFile(path string) (*domain.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	def, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if def.ID == "" {
		base := filepath.Base(path)
		def.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

// Parse decodes a JSON or YAML flow document.
func Parse(raw []byte) (*domain.Definition, error) {
	var fd fileDefinition
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, err
	}

	def := &domain.Definition{Flow: fd.Flow}
	var errs []error
	for _, n := range fd.Nodes {
		node, err := domain.DecodeNode(n.NodeID, n.NodeType, n.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def.Nodes = append(def.Nodes, node)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, e := range fd.Edges {
		edge := domain.FlowEdge{SourceNodeID: e.SourceNodeID, TargetNodeID: e.TargetNodeID}
		if edge.SourceNodeID == "" {
			edge.SourceNodeID = e.Source
		}
		if edge.TargetNodeID == "" {
			edge.TargetNodeID = e.Target
		}
		def.Edges = append(def.Edges, edge)
	}
	return def, nil
}
