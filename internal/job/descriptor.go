package job

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/arkilian/shardplan/pkg/types"
)

// InputRegistrar accepts literal input paths for a distributed job. It takes
// one glob per call; alternation groups must be expanded by the caller.
type InputRegistrar interface {
	AddInputPath(path string, format types.InputFormat) error
}

// InputSource is one registered input of a job.
type InputSource struct {
	Alias  string            `json:"alias"`
	Path   string            `json:"path"`
	Format types.InputFormat `json:"format"`
}

// Descriptor collects the configuration of a distributed job as it is built:
// its name and the input sources registered on it.
type Descriptor struct {
	name string

	mu     sync.Mutex
	inputs []InputSource
}

// NewDescriptor creates an empty descriptor for the job called name.
func NewDescriptor(name string) *Descriptor {
	return &Descriptor{name: name}
}

// Name returns the job name.
func (d *Descriptor) Name() string {
	return d.name
}

// AddInputPath registers path as an input read with format. The path must be
// a single literal glob: it may not contain a comma or an alternation group.
func (d *Descriptor) AddInputPath(path string, format types.InputFormat) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("job: empty input path")
	}
	if format == types.FormatUnset || !format.Valid() {
		return fmt.Errorf("job: invalid input format %q for %s", format, path)
	}
	if hasUnescaped(path, ",{}") {
		return fmt.Errorf("job: input path %q is not a single glob", path)
	}
	if _, err := url.Parse(path); err != nil {
		return fmt.Errorf("job: invalid input path %q: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = append(d.inputs, InputSource{
		Alias:  fmt.Sprintf("input-%d", len(d.inputs)),
		Path:   path,
		Format: format,
	})
	return nil
}

// Inputs returns the registered inputs in registration order.
func (d *Descriptor) Inputs() []InputSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]InputSource, len(d.inputs))
	copy(out, d.inputs)
	return out
}

// hasUnescaped reports whether s contains any byte of set outside a
// backslash escape or a character class.
func hasUnescaped(s, set string) bool {
	inClass := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case strings.IndexByte(set, c) >= 0:
			return true
		}
	}
	return false
}
