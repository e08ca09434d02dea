package codec

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/quillsec/quill/internal/model"
)

// NoteEntry pairs a decoded notebook page with the stable id of its parent.
// The parent relation is remapped to new rows by the importer.
type NoteEntry struct {
	Note         *model.NotebookPage
	ParentNoteID string
}

// ProjectBundle is the decoded form of one project archive entry: the project
// row, its owned sub-entities, and the attachment names the archive carries
// bytes for. References are unresolved; resolution happens against the
// destination store.
type ProjectBundle struct {
	Project         *model.Project
	ProjectTypeID   string
	Members         []model.ImportedMember
	ImportedMembers []model.ImportedMember
	Sections        []*model.Section
	Findings        []*model.Finding
	Notes           []NoteEntry
	Images          []string
	Files           []string
}

var knownProjectKeys = mapset.NewSet(
	"format", "id", "created", "updated", "name", "language", "tags",
	"members", "imported_members", "data", "unknown_custom_fields",
	"override_finding_ordering", "project_type",
	"sections", "findings", "notes", "images", "files",
)

func decodeProjectV1(p map[string]any) (*ProjectBundle, error) {
	if err := (validation.Errors{
		"id":           validation.Validate(str(p, "id"), validation.Required, is.UUID),
		"name":         validation.Validate(str(p, "name"), validation.Required),
		"project_type": validation.Validate(str(p, "project_type"), validation.Required, is.UUID),
	}).Filter(); err != nil {
		return nil, fmt.Errorf("%w: project: %v", ErrValidation, err)
	}

	project := &model.Project{
		ID:                      str(p, "id"),
		CreatedAt:               timeVal(p, "created"),
		Name:                    str(p, "name"),
		Language:                str(p, "language"),
		Tags:                    jsonColumn(p, "tags"),
		Data:                    jsonColumn(p, "data"),
		OverrideFindingOrdering: boolVal(p, "override_finding_ordering"),
	}

	// fields this codec does not understand survive the round trip in the
	// unknown_custom_fields side mapping
	unknown := map[string]any{}
	for k, v := range mapVal(p, "unknown_custom_fields") {
		unknown[k] = v
	}
	for k, v := range p {
		if !knownProjectKeys.Contains(k) {
			unknown[k] = v
		}
	}
	if len(unknown) > 0 {
		data, err := model.EncodeJSON(unknown)
		if err != nil {
			return nil, err
		}
		project.UnknownCustomFields = data
	}

	b := &ProjectBundle{
		Project:         project,
		ProjectTypeID:   str(p, "project_type"),
		Members:         memberList(p, "members"),
		ImportedMembers: memberList(p, "imported_members"),
		Images:          strList(p, "images"),
		Files:           strList(p, "files"),
	}

	for _, v := range listVal(p, "sections") {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: project: malformed section entry", ErrValidation)
		}
		if str(e, "id") == "" {
			return nil, fmt.Errorf("%w: project: section without id", ErrValidation)
		}
		b.Sections = append(b.Sections, &model.Section{
			SectionID:  str(e, "id"),
			CreatedAt:  timeVal(e, "created"),
			AssigneeID: strPtr(e, "assignee"),
			Status:     str(e, "status"),
			Data:       jsonColumn(e, "data"),
		})
	}

	for _, v := range listVal(p, "findings") {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: project: malformed finding entry", ErrValidation)
		}
		if str(e, "id") == "" {
			return nil, fmt.Errorf("%w: project: finding without id", ErrValidation)
		}
		b.Findings = append(b.Findings, &model.Finding{
			FindingID:  str(e, "id"),
			CreatedAt:  timeVal(e, "created"),
			AssigneeID: strPtr(e, "assignee"),
			TemplateID: strPtr(e, "template"),
			Status:     str(e, "status"),
			Order:      intVal(e, "order"),
			Data:       jsonColumn(e, "data"),
		})
	}

	for _, v := range listVal(p, "notes") {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: project: malformed note entry", ErrValidation)
		}
		if str(e, "id") == "" {
			return nil, fmt.Errorf("%w: project: note without id", ErrValidation)
		}
		b.Notes = append(b.Notes, NoteEntry{
			Note: &model.NotebookPage{
				NoteID:      str(e, "id"),
				CreatedAt:   timeVal(e, "created"),
				Title:       str(e, "title"),
				Text:        str(e, "text"),
				Checked:     boolPtr(e, "checked"),
				IconEmoji:   str(e, "icon_emoji"),
				StatusEmoji: str(e, "status_emoji"),
				Order:       intVal(e, "order"),
			},
			ParentNoteID: str(e, "parent"),
		})
	}

	return b, nil
}

// EncodeProject builds the projects/v1 payload for a project bundle.
func EncodeProject(b *ProjectBundle) (map[string]any, error) {
	p := map[string]any{
		"format":                    FormatProjectV1.String(),
		"id":                        b.Project.ID,
		"created":                   encodeTime(b.Project.CreatedAt),
		"updated":                   encodeTime(b.Project.UpdatedAt),
		"name":                      b.Project.Name,
		"language":                  b.Project.Language,
		"tags":                      rawJSON(b.Project.Tags),
		"members":                   b.Members,
		"imported_members":          b.ImportedMembers,
		"data":                      rawJSON(b.Project.Data),
		"unknown_custom_fields":     rawJSON(b.Project.UnknownCustomFields),
		"override_finding_ordering": b.Project.OverrideFindingOrdering,
		"project_type":              b.ProjectTypeID,
		"images":                    b.Images,
		"files":                     b.Files,
	}

	sections := make([]map[string]any, 0, len(b.Sections))
	for _, s := range b.Sections {
		sections = append(sections, map[string]any{
			"id":       s.SectionID,
			"created":  encodeTime(s.CreatedAt),
			"assignee": s.AssigneeID,
			"status":   s.Status,
			"data":     rawJSON(s.Data),
		})
	}
	p["sections"] = sections

	findings := make([]map[string]any, 0, len(b.Findings))
	for _, f := range b.Findings {
		findings = append(findings, map[string]any{
			"id":       f.FindingID,
			"created":  encodeTime(f.CreatedAt),
			"assignee": f.AssigneeID,
			"template": f.TemplateID,
			"status":   f.Status,
			"order":    f.Order,
			"data":     rawJSON(f.Data),
		})
	}
	p["findings"] = findings

	notes := make([]map[string]any, 0, len(b.Notes))
	for _, n := range b.Notes {
		entry := map[string]any{
			"id":           n.Note.NoteID,
			"created":      encodeTime(n.Note.CreatedAt),
			"title":        n.Note.Title,
			"text":         n.Note.Text,
			"checked":      n.Note.Checked,
			"icon_emoji":   n.Note.IconEmoji,
			"status_emoji": n.Note.StatusEmoji,
			"order":        n.Note.Order,
		}
		if n.ParentNoteID != "" {
			entry["parent"] = n.ParentNoteID
		} else {
			entry["parent"] = nil
		}
		notes = append(notes, entry)
	}
	p["notes"] = notes

	return p, nil
}
