package codec

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/quillsec/quill/internal/model"
)

// ProjectTypeBundle is the decoded form of one report design archive entry.
type ProjectTypeBundle struct {
	Type   *model.ProjectType
	Assets []string
}

func decodeProjectTypeV1(p map[string]any) (*ProjectTypeBundle, error) {
	if err := (validation.Errors{
		"id":   validation.Validate(str(p, "id"), validation.Required, is.UUID),
		"name": validation.Validate(str(p, "name"), validation.Required),
	}).Filter(); err != nil {
		return nil, fmt.Errorf("%w: project type: %v", ErrValidation, err)
	}

	return &ProjectTypeBundle{
		Type: &model.ProjectType{
			ID:                str(p, "id"),
			CreatedAt:         timeVal(p, "created"),
			Name:              str(p, "name"),
			Language:          str(p, "language"),
			ReportFields:      jsonColumn(p, "report_fields"),
			ReportSections:    jsonColumn(p, "report_sections"),
			FindingFields:     jsonColumn(p, "finding_fields"),
			FindingFieldOrder: jsonColumn(p, "finding_field_order"),
			FindingOrdering:   jsonColumn(p, "finding_ordering"),
			ReportTemplate:    str(p, "report_template"),
			ReportStyles:      str(p, "report_styles"),
			ReportPreviewData: jsonColumn(p, "report_preview_data"),
		},
		Assets: strList(p, "assets"),
	}, nil
}

// EncodeProjectType builds the project_types/v1 payload for a design bundle.
func EncodeProjectType(b *ProjectTypeBundle) (map[string]any, error) {
	return map[string]any{
		"format":              FormatProjectTypeV1.String(),
		"id":                  b.Type.ID,
		"created":             encodeTime(b.Type.CreatedAt),
		"updated":             encodeTime(b.Type.UpdatedAt),
		"name":                b.Type.Name,
		"language":            b.Type.Language,
		"report_fields":       rawJSON(b.Type.ReportFields),
		"report_sections":     rawJSON(b.Type.ReportSections),
		"finding_fields":      rawJSON(b.Type.FindingFields),
		"finding_field_order": rawJSON(b.Type.FindingFieldOrder),
		"finding_ordering":    rawJSON(b.Type.FindingOrdering),
		"report_template":     b.Type.ReportTemplate,
		"report_styles":       b.Type.ReportStyles,
		"report_preview_data": rawJSON(b.Type.ReportPreviewData),
		"assets":              b.Assets,
	}, nil
}
