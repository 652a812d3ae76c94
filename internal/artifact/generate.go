package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"dokpub/internal/publish"
)

// dockerfile builds a working image with no further edits: a pinned serving
// base, dependency install, file copies, and the uvicorn entrypoint bound to
// the container port.
const dockerfile = `FROM python:3.12-slim

WORKDIR /app

COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt

COPY . .

ENV PORT=8001
EXPOSE 8001

CMD ["uvicorn", "index:app", "--host", "0.0.0.0", "--port", "8001"]
`

// entrypointTemplate is the serving entrypoint. It only constructs the
// Datasette application from the copied files and configuration; it carries
// no logic of its own.
const entrypointTemplate = `from datasette.app import Datasette
import json
import pathlib
import os

static_mounts = [
    (static, str((pathlib.Path(".") / static).resolve()))
    for static in {{.Statics}}
]

metadata = dict()
try:
    metadata = json.load(open("metadata.json"))
except Exception:
    pass

secret = os.environ.get("DATASETTE_SECRET")

true, false = True, False

ds = Datasette(
    [],
    {{.Databases}},
    static_mounts=static_mounts,
    metadata=metadata{{.Extras}},
    secret=secret,
    cors=True,
    settings={{.Settings}}{{if .CrossDB}},
    crossdb=True{{end}}
)
app = ds.app()
`

var entrypointTmpl = template.Must(template.New("entrypoint").Parse(entrypointTemplate))

// Generate renders the artifact set for the given input and configuration.
// It is total for any configuration produced by publish.Resolve and performs
// no I/O; callers persist the result themselves.
func Generate(in Input, cfg *publish.Config) *Set {
	s := &Set{}
	s.add("Dockerfile", []byte(dockerfile))
	s.add("index.py", entrypoint(in, cfg))
	s.add("requirements.txt", requirements(cfg))
	if len(cfg.Metadata) > 0 {
		s.add("metadata.json", renderMetadata(cfg.Metadata))
	}

	for _, db := range in.Databases {
		s.add(db.Name, db.Data)
	}
	addFileGroup(s, "templates", in.Templates)
	addFileGroup(s, "plugins", in.Plugins)

	statics := append([]StaticFiles(nil), in.Statics...)
	sort.Slice(statics, func(i, j int) bool { return statics[i].Mount < statics[j].Mount })
	for _, mount := range statics {
		addFileGroup(s, mount.Mount, mount.Files)
	}

	return s
}

func addFileGroup(s *Set, prefix string, files []DataFile) {
	sorted := append([]DataFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, f := range sorted {
		s.add(prefix+"/"+f.Name, f.Data)
	}
}

func entrypoint(in Input, cfg *publish.Config) []byte {
	databases := make([]string, 0, len(in.Databases))
	for _, db := range in.Databases {
		databases = append(databases, db.Name)
	}

	mounts := make([]string, 0, len(cfg.Statics))
	for _, m := range cfg.Statics {
		mounts = append(mounts, m.Mount)
	}
	sort.Strings(mounts)

	var extras []string
	if cfg.HasTemplates {
		extras = append(extras, `template_dir="templates"`)
	}
	if cfg.HasPlugins {
		extras = append(extras, `plugins_dir="plugins"`)
	}
	extrasStr := ""
	if len(extras) > 0 {
		extrasStr = ", " + strings.Join(extras, ", ")
	}

	settings := cfg.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	var buf bytes.Buffer
	err := entrypointTmpl.Execute(&buf, struct {
		Databases string
		Statics   string
		Settings  string
		Extras    string
		CrossDB   bool
	}{
		Databases: mustJSON(databases),
		Statics:   mustJSON(mounts),
		Settings:  mustJSON(settings),
		Extras:    extrasStr,
		CrossDB:   cfg.CrossDB,
	})
	if err != nil {
		// Static template with string fields only.
		panic(fmt.Sprintf("entrypoint template: %v", err))
	}
	return buf.Bytes()
}

func requirements(cfg *publish.Config) []byte {
	lines := append([]string{cfg.DatasetteRequirement, "pysqlite3-binary", "uvicorn"}, cfg.Install...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

// renderMetadata marshals the merged metadata document. encoding/json sorts
// map keys, which keeps the output deterministic.
func renderMetadata(metadata map[string]any) []byte {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("metadata marshal: %v", err))
	}
	return append(data, '\n')
}

// mustJSON marshals values that cannot fail: string slices and maps of
// validated setting values.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return string(data)
}
