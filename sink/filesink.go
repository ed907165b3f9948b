package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/reportsmith/reportsmith/types"
)

const (
	environmentFilename = "environment.properties"
	categoriesFilename  = "categories.json"
)

// FileSink writes report entities as JSON files into a results directory:
// one <uuid>-result.json per test, one <uuid>-container.json per suite,
// plus environment.properties, categories.json and attachment files.
type FileSink struct {
	resultsDir string
	log        log.Logger

	wroteEnvironment bool
	wroteCategories  bool
}

// NewFileSink creates a FileSink rooted at resultsDir, creating the
// directory if needed.
func NewFileSink(resultsDir string, logger log.Logger) (*FileSink, error) {
	if resultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if logger == nil {
		logger = log.New()
	}
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", resultsDir, err)
	}
	return &FileSink{resultsDir: resultsDir, log: logger}, nil
}

// container is the persisted shape of a suite group
type container struct {
	UUID     string                    `json:"uuid"`
	Name     string                    `json:"name"`
	Children []string                  `json:"children"`
	Befores  []*types.ExecutableResult `json:"befores"`
	Afters   []*types.ExecutableResult `json:"afters"`
	Start    int64                     `json:"start"`
	Stop     int64                     `json:"stop,omitempty"`
}

// fileGroup implements Group for FileSink
type fileGroup struct {
	sink      *FileSink
	parent    *fileGroup
	container container
	closed    bool
}

func (g *fileGroup) Name() string { return g.container.Name }

// Done persists the container file and records this group as a child of its
// parent so nesting survives in the report.
func (g *fileGroup) Done() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.container.Stop = nowMillis()

	if g.parent != nil {
		g.parent.container.Children = append(g.parent.container.Children, g.container.UUID)
	}

	filename := g.container.UUID + "-container.json"
	return g.sink.writeJSON(filename, g.container)
}

// StartGroup implements Sink
func (s *FileSink) StartGroup(parent Group, name string) (Group, error) {
	var parentGroup *fileGroup
	if parent != nil {
		fg, ok := parent.(*fileGroup)
		if !ok {
			return nil, fmt.Errorf("group %q was not created by this sink", parent.Name())
		}
		parentGroup = fg
	}

	g := &fileGroup{
		sink:   s,
		parent: parentGroup,
		container: container{
			UUID:  uuid.New().String(),
			Name:  name,
			Start: nowMillis(),
		},
	}
	s.log.Debug("Opened report group", "name", name, "uuid", g.container.UUID)
	return g, nil
}

// fileTest implements TestHandle for FileSink
type fileTest struct {
	sink   *FileSink
	group  *fileGroup
	result *types.TestResult
	closed bool
}

func (t *fileTest) Result() *types.TestResult { return t.result }

func (t *fileTest) Done() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.result.Stop == 0 {
		t.result.Stop = nowMillis()
	}
	t.group.container.Children = append(t.group.container.Children, t.result.UUID)

	filename := t.result.UUID + "-result.json"
	return t.sink.writeJSON(filename, t.result)
}

// StartTest implements Sink
func (s *FileSink) StartTest(group Group, result *types.TestResult) (TestHandle, error) {
	fg, ok := group.(*fileGroup)
	if !ok || fg == nil {
		return nil, fmt.Errorf("test %q needs a group created by this sink", result.Name)
	}
	if result.UUID == "" {
		result.UUID = uuid.New().String()
	}
	if result.Start == 0 {
		result.Start = nowMillis()
	}
	return &fileTest{sink: s, group: fg, result: result}, nil
}

// fileExecutable implements ExecutableHandle for FileSink
type fileExecutable struct {
	group  *fileGroup
	result *types.ExecutableResult
	closed bool
}

func (e *fileExecutable) Result() *types.ExecutableResult { return e.result }

// Done records the executable in its container; the container file itself is
// written when the group closes.
func (e *fileExecutable) Done() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.result.Stop == 0 {
		e.result.Stop = nowMillis()
	}
	return nil
}

// StartExecutable implements Sink
func (s *FileSink) StartExecutable(group Group, result *types.ExecutableResult) (ExecutableHandle, error) {
	fg, ok := group.(*fileGroup)
	if !ok || fg == nil {
		return nil, fmt.Errorf("executable %q needs a group created by this sink", result.Name)
	}
	if result.Start == 0 {
		result.Start = nowMillis()
	}
	switch result.Type {
	case types.HookAfter:
		fg.container.Afters = append(fg.container.Afters, result)
	default:
		fg.container.Befores = append(fg.container.Befores, result)
	}
	return &fileExecutable{group: fg, result: result}, nil
}

// WriteAttachment implements Sink
func (s *FileSink) WriteAttachment(name, contentType string, body []byte) (string, error) {
	filename := fmt.Sprintf("%s-attachment%s", uuid.New().String(), extensionFor(contentType))
	path := filepath.Join(s.resultsDir, filename)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment %s: %w", name, err)
	}
	s.log.Debug("Wrote attachment", "name", name, "file", filename)
	return filename, nil
}

// WriteEnvironment implements Sink. The environment file is write-once;
// later calls are rejected so concurrent workers cannot clobber it.
func (s *FileSink) WriteEnvironment(info map[string]string) error {
	if s.wroteEnvironment {
		return fmt.Errorf("environment info was already written")
	}
	s.wroteEnvironment = true

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, info[k])
	}

	path := filepath.Join(s.resultsDir, environmentFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write environment file: %w", err)
	}
	return nil
}

// WriteCategories implements Sink. Write-once, like WriteEnvironment.
func (s *FileSink) WriteCategories(categories []types.Category) error {
	if s.wroteCategories {
		return fmt.Errorf("categories were already written")
	}
	s.wroteCategories = true
	return s.writeJSON(categoriesFilename, categories)
}

func (s *FileSink) writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	path := filepath.Join(s.resultsDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// extensionFor picks an attachment file extension from the content type.
// HTML is special-cased so viewers render it instead of offering a download.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "html"):
		return ".html"
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "plain"):
		return ".txt"
	default:
		return ".attach"
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
