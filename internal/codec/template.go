package codec

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/quillsec/quill/internal/model"
)

// TemplateBundle is the decoded form of one finding template archive entry.
type TemplateBundle struct {
	Template     *model.FindingTemplate
	Translations []*model.TemplateTranslation
	Images       []string
}

func decodeTemplateV2(p map[string]any) (*TemplateBundle, error) {
	if err := (validation.Errors{
		"id": validation.Validate(str(p, "id"), validation.Required, is.UUID),
	}).Filter(); err != nil {
		return nil, fmt.Errorf("%w: template: %v", ErrValidation, err)
	}

	b := &TemplateBundle{
		Template: &model.FindingTemplate{
			ID:        str(p, "id"),
			CreatedAt: timeVal(p, "created"),
			Tags:      jsonColumn(p, "tags"),
		},
		Images: strList(p, "images"),
	}

	mainCount := 0
	for _, v := range listVal(p, "translations") {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: template: malformed translation entry", ErrValidation)
		}
		tr := &model.TemplateTranslation{
			CreatedAt: timeVal(e, "created"),
			IsMain:    boolVal(e, "is_main"),
			Language:  str(e, "language"),
			Status:    str(e, "status"),
			Data:      jsonColumn(e, "data"),
		}
		if tr.Language == "" {
			return nil, fmt.Errorf("%w: template: translation without language", ErrValidation)
		}
		if tr.IsMain {
			mainCount++
		}
		b.Translations = append(b.Translations, tr)
	}
	if mainCount != 1 {
		return nil, fmt.Errorf("%w: template: expected exactly one main translation, got %d", ErrValidation, mainCount)
	}

	return b, nil
}

// decodeTemplateV1 migrates the legacy single-language layout: its inline
// language/status/data triple becomes the one main translation.
func decodeTemplateV1(p map[string]any) (*TemplateBundle, error) {
	if err := (validation.Errors{
		"id":       validation.Validate(str(p, "id"), validation.Required, is.UUID),
		"language": validation.Validate(str(p, "language"), validation.Required),
	}).Filter(); err != nil {
		return nil, fmt.Errorf("%w: template: %v", ErrValidation, err)
	}

	template := &model.FindingTemplate{
		ID:        str(p, "id"),
		CreatedAt: timeVal(p, "created"),
		Tags:      jsonColumn(p, "tags"),
	}
	return &TemplateBundle{
		Template: template,
		Translations: []*model.TemplateTranslation{{
			CreatedAt: template.CreatedAt,
			IsMain:    true,
			Language:  str(p, "language"),
			Status:    str(p, "status"),
			Data:      jsonColumn(p, "data"),
		}},
		// v1 archives never carried images
	}, nil
}

// EncodeTemplate builds the templates/v2 payload for a template bundle.
func EncodeTemplate(b *TemplateBundle) (map[string]any, error) {
	translations := make([]map[string]any, 0, len(b.Translations))
	for _, tr := range b.Translations {
		translations = append(translations, map[string]any{
			"id":       tr.ID,
			"created":  encodeTime(tr.CreatedAt),
			"is_main":  tr.IsMain,
			"language": tr.Language,
			"status":   tr.Status,
			"data":     rawJSON(tr.Data),
		})
	}

	return map[string]any{
		"format":       FormatTemplateV2.String(),
		"id":           b.Template.ID,
		"created":      encodeTime(b.Template.CreatedAt),
		"updated":      encodeTime(b.Template.UpdatedAt),
		"tags":         rawJSON(b.Template.Tags),
		"translations": translations,
		"images":       b.Images,
	}, nil
}
