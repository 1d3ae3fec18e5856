package analyzer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// Dependency is one declared dependency. Version is the constraint as
// written in the manifest and may be empty.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Dev     bool   `json:"dev,omitempty"`
}

// Manifest is a parsed dependency file. Error is set when the file exists
// but could not be parsed; the rest of the analysis still succeeds.
type Manifest struct {
	File         string       `json:"file"`
	Ecosystem    string       `json:"ecosystem"`
	Dependencies []Dependency `json:"dependencies"`
	Error        string       `json:"error,omitempty"`
}

type manifestParser struct {
	file      string
	ecosystem string
	parse     func(data []byte) ([]Dependency, error)
}

var manifestParsers = []manifestParser{
	{"package.json", "npm", parsePackageJSON},
	{"requirements.txt", "pip", parseRequirements},
	{"pyproject.toml", "python", parsePyproject},
	{"go.mod", "go", parseGoMod},
	{"Cargo.toml", "cargo", parseCargo},
	{"pubspec.yaml", "pub", parsePubspec},
	{"environment.yml", "conda", parseCondaEnv},
}

// ReadManifests parses every known manifest present directly under root
func ReadManifests(fsys afero.Fs, root string) []Manifest {
	var manifests []Manifest
	for _, p := range manifestParsers {
		data, err := afero.ReadFile(fsys, filepath.Join(root, p.file))
		if err != nil {
			continue
		}

		m := Manifest{File: p.file, Ecosystem: p.ecosystem}
		deps, err := p.parse(data)
		if err != nil {
			m.Error = err.Error()
		}
		sort.SliceStable(deps, func(i, j int) bool {
			if deps[i].Dev != deps[j].Dev {
				return !deps[i].Dev
			}
			return deps[i].Name < deps[j].Name
		})
		m.Dependencies = deps
		manifests = append(manifests, m)
	}
	return manifests
}

func parsePackageJSON(data []byte) ([]Dependency, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}

	var deps []Dependency
	for name, version := range pkg.Dependencies {
		deps = append(deps, Dependency{Name: name, Version: version})
	}
	for name, version := range pkg.DevDependencies {
		deps = append(deps, Dependency{Name: name, Version: version, Dev: true})
	}
	return deps, nil
}

func parseRequirements(data []byte) ([]Dependency, error) {
	var deps []Dependency
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		// Skip blanks and pip options such as -r, -e and --index-url
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if dep, ok := parseRequirement(line); ok {
			deps = append(deps, dep)
		}
	}
	if err := scanner.Err(); err != nil {
		return deps, fmt.Errorf("read requirements.txt: %w", err)
	}
	return deps, nil
}

// parseRequirement splits a PEP 508 requirement like "requests[socks]>=2.0; python_version>'3'"
func parseRequirement(req string) (Dependency, bool) {
	if i := strings.Index(req, ";"); i >= 0 {
		req = req[:i]
	}
	req = strings.TrimSpace(req)
	end := strings.IndexAny(req, "=<>!~[ (")
	if end < 0 {
		return Dependency{Name: req}, req != ""
	}

	name := strings.TrimSpace(req[:end])
	rest := req[end:]
	if strings.HasPrefix(rest, "[") {
		if j := strings.Index(rest, "]"); j >= 0 {
			rest = rest[j+1:]
		}
	}
	version := strings.Trim(strings.TrimSpace(rest), "()")
	return Dependency{Name: name, Version: strings.TrimSpace(version)}, name != ""
}

func parsePyproject(data []byte) ([]Dependency, error) {
	var doc struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies    map[string]any `toml:"dependencies"`
				DevDependencies map[string]any `toml:"dev-dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pyproject.toml: %w", err)
	}

	var deps []Dependency
	for _, spec := range doc.Project.Dependencies {
		if dep, ok := parseRequirement(spec); ok {
			deps = append(deps, dep)
		}
	}
	for _, group := range doc.Project.OptionalDependencies {
		for _, spec := range group {
			if dep, ok := parseRequirement(spec); ok {
				dep.Dev = true
				deps = append(deps, dep)
			}
		}
	}
	for name, v := range doc.Tool.Poetry.Dependencies {
		if name == "python" {
			continue
		}
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v)})
	}
	for name, v := range doc.Tool.Poetry.DevDependencies {
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v), Dev: true})
	}
	return deps, nil
}

func parseGoMod(data []byte) ([]Dependency, error) {
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}

	deps := make([]Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		// Indirect requirements are reported with the dev flag
		deps = append(deps, Dependency{Name: r.Mod.Path, Version: r.Mod.Version, Dev: r.Indirect})
	}
	return deps, nil
}

func parseCargo(data []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse Cargo.toml: %w", err)
	}

	var deps []Dependency
	for name, v := range doc.Dependencies {
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v)})
	}
	for name, v := range doc.DevDependencies {
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v), Dev: true})
	}
	return deps, nil
}

func parsePubspec(data []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies    map[string]any `yaml:"dependencies"`
		DevDependencies map[string]any `yaml:"dev_dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pubspec.yaml: %w", err)
	}

	var deps []Dependency
	for name, v := range doc.Dependencies {
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v)})
	}
	for name, v := range doc.DevDependencies {
		deps = append(deps, Dependency{Name: name, Version: tableVersion(v), Dev: true})
	}
	return deps, nil
}

func parseCondaEnv(data []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies []any `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse environment.yml: %w", err)
	}

	var deps []Dependency
	for _, entry := range doc.Dependencies {
		switch v := entry.(type) {
		case string:
			deps = append(deps, condaSpec(v))
		case map[string]any:
			// {pip: [...]} nests pip requirements
			pip, _ := v["pip"].([]any)
			for _, p := range pip {
				if s, ok := p.(string); ok {
					if dep, ok := parseRequirement(s); ok {
						deps = append(deps, dep)
					}
				}
			}
		}
	}
	return deps, nil
}

// condaSpec splits "numpy=1.21" or "python>=3.9"
func condaSpec(spec string) Dependency {
	spec = strings.TrimSpace(spec)
	if i := strings.IndexAny(spec, "=<>! "); i >= 0 {
		return Dependency{Name: spec[:i], Version: strings.TrimSpace(spec[i:])}
	}
	return Dependency{Name: spec}
}

// tableVersion extracts a version from either `dep = "1.0"` or
// `dep = { version = "1.0", ... }`. Path and git dependencies yield "".
func tableVersion(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["version"].(string); ok {
			return s
		}
	}
	return ""
}
