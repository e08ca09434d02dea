// Package codec serializes entity graphs to and from the versioned mappings
// stored in archive entries. Every mapping carries a top-level format tag of
// the shape "<domain>/v<major>"; decoding dispatches on that tag through a
// table, so supporting a new version means adding a table entry.
package codec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrValidation reports an unparsable entity payload or an archive of the
// wrong kind for the running import operation. Fatal to the whole import.
var ErrValidation = errors.New("codec: validation failed")

const (
	DomainProjects     = "projects"
	DomainProjectTypes = "project_types"
	DomainTemplates    = "templates"
)

// Format identifies a payload domain and major version.
type Format struct {
	Domain string
	Major  int
}

func (f Format) String() string {
	return fmt.Sprintf("%s/v%d", f.Domain, f.Major)
}

var (
	FormatProjectV1     = Format{Domain: DomainProjects, Major: 1}
	FormatProjectTypeV1 = Format{Domain: DomainProjectTypes, Major: 1}
	FormatTemplateV2    = Format{Domain: DomainTemplates, Major: 2}
	// FormatTemplateV1 is the legacy single-language template layout. It is
	// accepted on decode only and lifted into a single main translation.
	FormatTemplateV1 = Format{Domain: DomainTemplates, Major: 1}
)

var formatPattern = regexp.MustCompile(`^([a-z_]+)/v([0-9]+)$`)

// ParseFormat parses a "<domain>/v<major>" tag.
func ParseFormat(s string) (Format, error) {
	m := formatPattern.FindStringSubmatch(s)
	if m == nil {
		return Format{}, fmt.Errorf("%w: invalid format tag %q", ErrValidation, s)
	}
	major, err := strconv.Atoi(m[2])
	if err != nil {
		return Format{}, fmt.Errorf("%w: invalid format tag %q", ErrValidation, s)
	}
	return Format{Domain: m[1], Major: major}, nil
}

// PayloadFormat reads and parses the format tag of a decoded payload.
func PayloadFormat(p map[string]any) (Format, error) {
	tag, ok := p["format"].(string)
	if !ok || tag == "" {
		return Format{}, fmt.Errorf("%w: payload has no format tag", ErrValidation)
	}
	return ParseFormat(tag)
}

var (
	projectDecoders = map[Format]func(map[string]any) (*ProjectBundle, error){
		FormatProjectV1: decodeProjectV1,
	}
	projectTypeDecoders = map[Format]func(map[string]any) (*ProjectTypeBundle, error){
		FormatProjectTypeV1: decodeProjectTypeV1,
	}
	templateDecoders = map[Format]func(map[string]any) (*TemplateBundle, error){
		FormatTemplateV2: decodeTemplateV2,
		FormatTemplateV1: decodeTemplateV1,
	}
)

// DecodeProject dispatches a project payload to its version decoder.
func DecodeProject(p map[string]any) (*ProjectBundle, error) {
	f, err := PayloadFormat(p)
	if err != nil {
		return nil, err
	}
	dec, ok := projectDecoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format %q for a project payload", ErrValidation, f)
	}
	return dec(p)
}

// DecodeProjectType dispatches a project type payload to its version decoder.
func DecodeProjectType(p map[string]any) (*ProjectTypeBundle, error) {
	f, err := PayloadFormat(p)
	if err != nil {
		return nil, err
	}
	dec, ok := projectTypeDecoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format %q for a project type payload", ErrValidation, f)
	}
	return dec(p)
}

// DecodeTemplate dispatches a template payload to its version decoder.
func DecodeTemplate(p map[string]any) (*TemplateBundle, error) {
	f, err := PayloadFormat(p)
	if err != nil {
		return nil, err
	}
	dec, ok := templateDecoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format %q for a template payload", ErrValidation, f)
	}
	return dec(p)
}
