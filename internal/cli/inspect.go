package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/flowchat/internal/presentation/graph"
	"github.com/aretw0/flowchat/pkg/adapters/file"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/validator"
)

// LoadDefinitions reads one flow file, or every flow of a directory.
func LoadDefinitions(ctx context.Context, path string) ([]*domain.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		def, err := file.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []*domain.Definition{def}, nil
	}

	loader, err := file.NewLoader(path)
	if err != nil {
		return nil, err
	}
	ids, err := loader.List(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]*domain.Definition, 0, len(ids))
	for _, id := range ids {
		def, err := loader.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Validate writes a report per definition and returns an error when any
// definition has error-level issues. With asJSON the reports are written as
// one JSON array.
func Validate(w io.Writer, defs []*domain.Definition, asJSON bool) error {
	reports := make([]validator.Report, 0, len(defs))
	failed := 0
	for _, def := range defs {
		r := validator.Validate(def)
		if r.Issues == nil {
			r.Issues = []validator.Issue{}
		}
		reports = append(reports, r)
		if r.HasErrors() {
			failed++
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			status := "ok"
			if r.HasErrors() {
				status = "invalid"
			}
			fmt.Fprintf(w, "%s: %s\n", r.FlowID, status)
			for _, issue := range r.Issues {
				fmt.Fprintf(w, "  %s\n", issue)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d flows failed validation", failed, len(defs))
	}
	return nil
}

// Graph writes the Mermaid diagram of def.
func Graph(w io.Writer, def *domain.Definition) error {
	_, err := io.WriteString(w, graph.GenerateMermaid(def, nil))
	return err
}
