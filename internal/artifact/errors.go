package artifact

import "fmt"

// GenerationError reports a failure while rendering an artifact. Nothing
// returns it today: generation is total for any resolved configuration.
// It exists so fallible artifact types added later have an error type with
// an established home.
type GenerationError struct {
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating %s: %v", e.Path, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
