// Package annotations recovers structured report metadata from the
// free-form documentation block attached to a test's source text, and maps
// the recovered annotations onto report labels and links.
//
// Parsing is pure string work isolated from the stateful reporter so it can
// be unit-tested on its own.
package annotations

import (
	"regexp"
	"strings"

	"github.com/reportsmith/reportsmith/types"
)

var (
	docBlockPattern   = regexp.MustCompile(`(?m)^[ \t]*/\*\*((?s).*?)\*/`)
	annotationPattern = regexp.MustCompile(`^@(\w+)\s+(.+)$`)
)

// Annotation is one `@name value` marker recovered from a doc block
type Annotation struct {
	Name  string
	Value string
}

// Metadata is the structured result of extracting one test's source text
type Metadata struct {
	// Description is the free text of the doc block, without annotations
	Description string
	// Annotations are the `@name value` pairs in source order, with
	// comma-separated values split into individual entries
	Annotations []Annotation
	// Source is the test source with the doc block stripped
	Source string
}

// Extract parses the leading documentation block from a test's source text.
// Source without a doc block yields empty description and annotations with
// the source untouched.
func Extract(source string) Metadata {
	meta := Metadata{Source: source}

	loc := docBlockPattern.FindStringSubmatchIndex(source)
	if loc == nil {
		return meta
	}

	body := source[loc[2]:loc[3]]
	meta.Source = strings.TrimLeft(source[:loc[0]]+source[loc[1]:], "\n")

	var freeText []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "*"))
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := annotationPattern.FindStringSubmatch(line)
		if m == nil {
			freeText = append(freeText, line)
			continue
		}

		name := m[1]
		for _, value := range strings.Split(m[2], ",") {
			value = strings.TrimSpace(value)
			if value != "" {
				meta.Annotations = append(meta.Annotations, Annotation{Name: name, Value: value})
			}
		}
	}

	meta.Description = strings.Join(freeText, "\n")
	return meta
}

const (
	firstAssertionMarker = "expect("
	retryHelperMarker    = "waitFor("
)

// PrepareSource readies a doc-stripped test body for pretty-printing: a line
// break is inserted before the first assertion call so the assertion block
// stands apart from setup code. Sources using a wait/poll helper are left
// alone, since breaking inside a retry loop mangles its formatting.
func PrepareSource(source string) string {
	if strings.Contains(source, retryHelperMarker) {
		return source
	}
	if idx := strings.Index(source, firstAssertionMarker); idx > 0 {
		return source[:idx] + "\n" + source[idx:]
	}
	return source
}

// Formatter pretty-prints an extracted source snippet before it is embedded
// in a test description. The concrete formatter is an external collaborator.
type Formatter interface {
	Format(source string) (string, error)
}

// PassthroughFormatter trims surrounding whitespace and nothing else. It is
// the default when no external formatter is configured.
type PassthroughFormatter struct{}

// Format implements Formatter
func (PassthroughFormatter) Format(source string) (string, error) {
	return strings.TrimSpace(source), nil
}

// noSourcePlaceholder is embedded when a test's source text is unavailable
const noSourcePlaceholder = "Code is not available."

// BuildDescription renders the markdown description for a test: the doc
// block's free text followed by the fenced formatted source snippet, or a
// placeholder when the source is unavailable or embedding is disabled.
func BuildDescription(freeText, formattedSource string, embedSource bool) string {
	var b strings.Builder
	if freeText != "" {
		b.WriteString(freeText)
	}

	if !embedSource {
		return b.String()
	}

	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	if formattedSource == "" {
		b.WriteString(noSourcePlaceholder)
	} else {
		b.WriteString("```ts\n")
		b.WriteString(formattedSource)
		b.WriteString("\n```")
	}
	return b.String()
}

// Mapper turns annotations into report labels and links using the configured
// tracker base URLs.
type Mapper struct {
	IssueBaseURL string
	TMSBaseURL   string
}

// Map converts one annotation to its label/link entries:
// issue → issue link, tms → test-management link, tag/tags → tag labels,
// milestone → milestone and epic labels, anything else → a generic label
// named after the annotation.
func (m Mapper) Map(a Annotation) ([]types.Label, []types.Link) {
	switch a.Name {
	case "issue":
		return nil, []types.Link{{
			Name: a.Value,
			URL:  m.IssueBaseURL + a.Value,
			Type: types.LinkTypeIssue,
		}}
	case "tms":
		return nil, []types.Link{{
			Name: a.Value,
			URL:  m.TMSBaseURL + a.Value,
			Type: types.LinkTypeTMS,
		}}
	case "tag", "tags":
		return []types.Label{{Name: types.LabelTag, Value: a.Value}}, nil
	case "milestone":
		return []types.Label{
			{Name: types.LabelMilestone, Value: a.Value},
			{Name: types.LabelEpic, Value: a.Value},
		}, nil
	default:
		return []types.Label{{Name: a.Name, Value: a.Value}}, nil
	}
}

// MapIndexed applies Map only when the annotation's recorded ordinal index
// matches the currently active test. Labels accumulated while several tests
// run concurrently against one reporter carry the index of the test they
// were recorded for; a mismatch means the annotation belongs to a different
// test and must not leak onto this one. A nil index always applies.
func (m Mapper) MapIndexed(a Annotation, index *int, currentIndex int) ([]types.Label, []types.Link) {
	if index != nil && *index != currentIndex {
		return nil, nil
	}
	return m.Map(a)
}
