package analyzer

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadManifests(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want []Dependency
	}{
		{
			name: "package.json",
			file: "package.json",
			body: `{"dependencies":{"react":"^18.0.0","axios":"1.6.0"},"devDependencies":{"jest":"^29"}}`,
			want: []Dependency{
				{Name: "axios", Version: "1.6.0"},
				{Name: "react", Version: "^18.0.0"},
				{Name: "jest", Version: "^29", Dev: true},
			},
		},
		{
			name: "requirements.txt",
			file: "requirements.txt",
			body: "# web\nrequests[socks]>=2.31 ; python_version > '3.8'\n-r base.txt\n\nflask==3.0.0  # pinned\nnumpy\n",
			want: []Dependency{
				{Name: "flask", Version: "==3.0.0"},
				{Name: "numpy"},
				{Name: "requests", Version: ">=2.31"},
			},
		},
		{
			name: "pyproject PEP 621",
			file: "pyproject.toml",
			body: "[project]\nname = \"demo\"\ndependencies = [\"httpx>=0.27\", \"rich\"]\n\n[project.optional-dependencies]\ntest = [\"pytest>=8\"]\n",
			want: []Dependency{
				{Name: "httpx", Version: ">=0.27"},
				{Name: "rich"},
				{Name: "pytest", Version: ">=8", Dev: true},
			},
		},
		{
			name: "pyproject poetry",
			file: "pyproject.toml",
			body: "[tool.poetry.dependencies]\npython = \"^3.11\"\nclick = \"^8.1\"\npydantic = { version = \"^2.0\", extras = [\"email\"] }\n",
			want: []Dependency{
				{Name: "click", Version: "^8.1"},
				{Name: "pydantic", Version: "^2.0"},
			},
		},
		{
			name: "go.mod",
			file: "go.mod",
			body: goMod,
			want: []Dependency{
				{Name: "github.com/spf13/cobra", Version: "v1.8.1"},
				{Name: "golang.org/x/sys", Version: "v0.20.0", Dev: true},
			},
		},
		{
			name: "Cargo.toml",
			file: "Cargo.toml",
			body: "[package]\nname = \"demo\"\n\n[dependencies]\nserde = { version = \"1.0\", features = [\"derive\"] }\nanyhow = \"1\"\nlocal = { path = \"../local\" }\n\n[dev-dependencies]\ntokio-test = \"0.4\"\n",
			want: []Dependency{
				{Name: "anyhow", Version: "1"},
				{Name: "local"},
				{Name: "serde", Version: "1.0"},
				{Name: "tokio-test", Version: "0.4", Dev: true},
			},
		},
		{
			name: "pubspec.yaml",
			file: "pubspec.yaml",
			body: "name: app\ndependencies:\n  flutter:\n    sdk: flutter\n  http: ^1.2.0\ndev_dependencies:\n  lints: ^3.0.0\n",
			want: []Dependency{
				{Name: "flutter"},
				{Name: "http", Version: "^1.2.0"},
				{Name: "lints", Version: "^3.0.0", Dev: true},
			},
		},
		{
			name: "environment.yml",
			file: "environment.yml",
			body: "name: env\ndependencies:\n  - python>=3.10\n  - numpy=1.26\n  - pip\n  - pip:\n    - requests==2.31.0\n",
			want: []Dependency{
				{Name: "numpy", Version: "=1.26"},
				{Name: "pip"},
				{Name: "python", Version: ">=3.10"},
				{Name: "requests", Version: "==2.31.0"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/p/"+tt.file, []byte(tt.body), 0o644))

			manifests := ReadManifests(fs, "/p")
			require.Len(t, manifests, 1)
			assert.Empty(t, manifests[0].Error)
			assert.Equal(t, tt.file, manifests[0].File)
			assert.Equal(t, tt.want, manifests[0].Dependencies)
		})
	}
}

func TestReadManifests_ParseError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/package.json", []byte("{not json"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/p/Cargo.toml", []byte("[dependencies\n"), 0o644))

	manifests := ReadManifests(fs, "/p")
	require.Len(t, manifests, 2)
	for _, m := range manifests {
		assert.NotEmpty(t, m.Error, m.File)
		assert.Empty(t, m.Dependencies, m.File)
	}
}

func TestReadManifests_None(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/p", 0o755))
	assert.Empty(t, ReadManifests(fs, "/p"))
}
