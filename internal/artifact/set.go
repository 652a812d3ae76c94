// Package artifact renders the deployable files for a publish invocation:
// the container build file, the serving entrypoint, the dependency manifest,
// and copies of the caller's data files and assets. Generation is pure and
// deterministic; persisting the result is the caller's concern.
package artifact

// DataFile is a named file whose bytes were read into memory by the caller.
// The content is opaque; it is copied into the artifact set unmodified.
type DataFile struct {
	Name string
	Data []byte
}

// StaticFiles groups the files of one static mount. File names are
// slash-separated paths relative to the mount directory.
type StaticFiles struct {
	Mount string
	Files []DataFile
}

// Input is everything Generate copies into the artifact set. All fields may
// be empty; an empty-data deployment still yields the build file, entrypoint,
// and manifest.
type Input struct {
	Databases []DataFile
	Statics   []StaticFiles
	Templates []DataFile
	Plugins   []DataFile
}

// File is one entry of a generated artifact set.
type File struct {
	Path string
	Data []byte
}

// Set is an ordered collection of generated files. Order is deterministic:
// identical input and configuration yield byte-identical sets.
type Set struct {
	files []File
}

func (s *Set) add(path string, data []byte) {
	s.files = append(s.files, File{Path: path, Data: data})
}

// Files returns the entries in generation order.
func (s *Set) Files() []File {
	return s.files
}

// Len returns the number of entries.
func (s *Set) Len() int {
	return len(s.files)
}

// Get returns the content of the entry at path.
func (s *Set) Get(path string) ([]byte, bool) {
	for _, f := range s.files {
		if f.Path == path {
			return f.Data, true
		}
	}
	return nil, false
}
