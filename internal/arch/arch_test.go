// ./internal/arch/arch_test.go
package arch

import (
	"bytes"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"testing"
)

type pkg struct {
	ImportPath string
	Imports    []string
	Standard   bool
}

const mod = "lrbinner/"

func TestImportBoundaries(t *testing.T) {
	cmd := exec.Command("go", "list", "-json", mod+"...")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("go list: %v", err)
	}
	dec := json.NewDecoder(&out)

	// stages never reach up into the CLI or the orchestration layer
	upper := []string{
		mod + "internal/cli", mod + "internal/runctx",
		mod + "internal/appcore", mod + "internal/app", mod + "cmd/",
	}
	ban := func(extra ...string) []string { return append(append([]string{}, upper...), extra...) }

	bans := map[string][]string{
		mod + "internal/seqfile":      ban(mod+"internal/profile", mod+"internal/pipeline", mod+"internal/assign"),
		mod + "internal/kmer":         ban(mod+"internal/profile", mod+"internal/seqfile"),
		mod + "internal/profile":      ban(mod+"internal/profilestore", mod+"internal/pipeline", mod+"internal/encoder"),
		mod + "internal/profilestore": ban(mod+"internal/pipeline", mod+"internal/encoder"),
		mod + "internal/pipeline":     ban(mod+"internal/encoder", mod+"internal/cluster", mod+"internal/writers"),
		mod + "internal/compute":      ban(mod+"internal/encoder", mod+"internal/cluster", mod+"internal/profile"),
		mod + "internal/encoder":      ban(mod+"internal/profilestore", mod+"internal/pipeline", mod+"internal/cluster"),
		mod + "internal/cluster":      ban(mod+"internal/encoder", mod+"internal/refine", mod+"internal/assign"),
		mod + "internal/refine":       ban(mod+"internal/encoder", mod+"internal/assign", mod+"internal/writers"),
		mod + "internal/assign":       ban(mod+"internal/encoder", mod+"internal/refine", mod+"internal/writers"),
		mod + "internal/writers":      ban(mod+"internal/pipeline", mod+"internal/encoder", mod+"internal/profilestore"),
		mod + "internal/latentplot":   ban(mod+"internal/encoder", mod+"internal/writers"),
		mod + "pkg/api":               ban(mod + "internal/"),
	}

	var violations []string
	for {
		var p pkg
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.HasPrefix(p.ImportPath, mod) {
			continue
		}
		imp := p.ImportPath
		forbidden, ok := bans[imp]
		if !ok {
			continue
		}
		for _, dep := range p.Imports {
			if !strings.HasPrefix(dep, mod) {
				continue
			}
			for _, b := range forbidden {
				if strings.HasPrefix(dep, b) {
					violations = append(violations, imp+" → "+dep)
				}
			}
		}
	}

	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n  %s", strings.Join(violations, "\n  "))
	}
}
