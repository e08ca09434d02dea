// Package transfer implements the export and import orchestrators: walking an
// entity subgraph into an archive stream, and reconstructing one from a stream
// inside a single store transaction.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quillsec/quill/internal/archive"
	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/codec"
	"github.com/quillsec/quill/internal/compress"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// ExportOptions controls how much of a project subgraph an export carries.
type ExportOptions struct {
	// All includes notebook pages, standalone files and every image. The
	// default carries only images referenced from exported text fields and
	// skips notes and files entirely.
	All bool
}

// Exporter streams document roots into archive form. Exports are lazy: the
// returned reader pulls entries out of the store as the consumer reads.
type Exporter struct {
	store store.Store
	blobs *blob.Store
}

func NewExporter(st store.Store, blobs *blob.Store) *Exporter {
	return &Exporter{store: st, blobs: blobs}
}

// stream runs produce in a pipe-fed goroutine so archive bytes are generated
// on demand. Producer errors surface on the read side of the pipe.
func (e *Exporter) stream(ctx context.Context, c compress.Codec, produce func(ctx context.Context, aw *archive.Writer) error) io.ReadCloser {
	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		aw := archive.NewWriter(pw, c)
		err := produce(ctx, aw)
		if err == nil {
			err = aw.Close()
		}
		pw.CloseWithError(err)
		return err
	})
	return pr
}

// ExportProjects streams the given projects, their designs and attachments.
func (e *Exporter) ExportProjects(ctx context.Context, c compress.Codec, opts ExportOptions, ids ...string) io.ReadCloser {
	return e.stream(ctx, c, func(ctx context.Context, aw *archive.Writer) error {
		seenTypes := mapset.NewSet[string]()
		for _, id := range ids {
			if err := e.writeProject(ctx, aw, opts, id, seenTypes); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportProjectTypes streams the given report designs and their assets.
func (e *Exporter) ExportProjectTypes(ctx context.Context, c compress.Codec, ids ...string) io.ReadCloser {
	return e.stream(ctx, c, func(ctx context.Context, aw *archive.Writer) error {
		for _, id := range ids {
			if err := e.writeProjectType(ctx, aw, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportTemplates streams the given finding templates and their images.
func (e *Exporter) ExportTemplates(ctx context.Context, c compress.Codec, ids ...string) io.ReadCloser {
	return e.stream(ctx, c, func(ctx context.Context, aw *archive.Writer) error {
		for _, id := range ids {
			if err := e.writeTemplate(ctx, aw, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Exporter) writeProject(ctx context.Context, aw *archive.Writer, opts ExportOptions, id string, seenTypes mapset.Set[string]) error {
	p, err := e.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	sections, err := e.store.ListSections(ctx, id)
	if err != nil {
		return err
	}
	findings, err := e.store.ListFindings(ctx, id)
	if err != nil {
		return err
	}

	b := &codec.ProjectBundle{
		Project:       p,
		ProjectTypeID: p.ProjectTypeID,
		Sections:      sections,
		Findings:      findings,
	}
	if b.Members, b.ImportedMembers, err = e.memberSnapshots(ctx, p); err != nil {
		return err
	}

	if opts.All {
		notes, err := e.store.ListNotes(ctx, id)
		if err != nil {
			return err
		}
		byRow := make(map[string]string, len(notes))
		for _, n := range notes {
			byRow[n.ID] = n.NoteID
		}
		for _, n := range notes {
			entry := codec.NoteEntry{Note: n}
			if n.ParentID != nil {
				entry.ParentNoteID = byRow[*n.ParentID]
			}
			b.Notes = append(b.Notes, entry)
		}
	}

	images, err := e.store.ListAttachments(ctx, id, model.AttachmentImage)
	if err != nil {
		return err
	}
	if !opts.All {
		texts := []string{p.Data}
		for _, s := range sections {
			texts = append(texts, s.Data)
		}
		for _, f := range findings {
			texts = append(texts, f.Data)
		}
		refs := referencedImages(texts...)
		filtered := images[:0]
		for _, a := range images {
			if refs.Contains(a.Name) {
				filtered = append(filtered, a)
			}
		}
		images = filtered
	}
	for _, a := range images {
		b.Images = append(b.Images, a.Name)
	}

	var files []*model.Attachment
	if opts.All {
		if files, err = e.store.ListAttachments(ctx, id, model.AttachmentFile); err != nil {
			return err
		}
		for _, a := range files {
			b.Files = append(b.Files, a.Name)
		}
	}

	payload, err := codec.EncodeProject(b)
	if err != nil {
		return err
	}
	if err := writeJSONEntry(aw, p.ID+".json", payload); err != nil {
		return err
	}

	// the owned design travels with the project so an import into another
	// instance can reconstruct it as a dependency
	if !seenTypes.Contains(p.ProjectTypeID) {
		seenTypes.Add(p.ProjectTypeID)
		if err := e.writeProjectType(ctx, aw, p.ProjectTypeID); err != nil {
			return err
		}
	}

	if err := e.writeAttachments(ctx, aw, images); err != nil {
		return err
	}
	if err := e.writeAttachments(ctx, aw, files); err != nil {
		return err
	}
	logrus.Infof("exported project %s (%s)", p.Name, p.ID)
	return nil
}

func (e *Exporter) writeProjectType(ctx context.Context, aw *archive.Writer, id string) error {
	t, err := e.store.GetProjectType(ctx, id)
	if err != nil {
		return err
	}
	assets, err := e.store.ListAttachments(ctx, id, model.AttachmentAsset)
	if err != nil {
		return err
	}
	b := &codec.ProjectTypeBundle{Type: t}
	for _, a := range assets {
		b.Assets = append(b.Assets, a.Name)
	}
	payload, err := codec.EncodeProjectType(b)
	if err != nil {
		return err
	}
	if err := writeJSONEntry(aw, t.ID+".json", payload); err != nil {
		return err
	}
	return e.writeAttachments(ctx, aw, assets)
}

func (e *Exporter) writeTemplate(ctx context.Context, aw *archive.Writer, id string) error {
	t, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	translations, err := e.store.ListTranslations(ctx, id)
	if err != nil {
		return err
	}
	images, err := e.store.ListAttachments(ctx, id, model.AttachmentImage)
	if err != nil {
		return err
	}
	b := &codec.TemplateBundle{Template: t, Translations: translations}
	for _, a := range images {
		b.Images = append(b.Images, a.Name)
	}
	payload, err := codec.EncodeTemplate(b)
	if err != nil {
		return err
	}
	if err := writeJSONEntry(aw, t.ID+".json", payload); err != nil {
		return err
	}
	return e.writeAttachments(ctx, aw, images)
}

// memberSnapshots turns the live membership into portable snapshots and keeps
// the already-imported snapshots of users that no longer exist, skipping ids
// shadowed by live members.
func (e *Exporter) memberSnapshots(ctx context.Context, p *model.Project) (members, imported []model.ImportedMember, err error) {
	rows, err := e.store.ListMembers(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	live := mapset.NewSet[string]()
	for _, row := range rows {
		u, err := e.store.GetUser(ctx, row.UserID)
		if errors.Is(err, store.ErrNotFound) {
			// a deleted user can leave its membership row behind; the
			// membership is dropped from the archive
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		roles, err := row.RoleList()
		if err != nil {
			return nil, nil, err
		}
		members = append(members, u.Snapshot(roles))
		live.Add(row.UserID)
	}
	snapshots, err := p.ImportedMemberList()
	if err != nil {
		return nil, nil, err
	}
	for _, m := range snapshots {
		if !live.Contains(m.ID) {
			imported = append(imported, m)
		}
	}
	return members, imported, nil
}

func (e *Exporter) writeAttachments(ctx context.Context, aw *archive.Writer, atts []*model.Attachment) error {
	for _, a := range atts {
		size, err := e.blobs.Stat(ctx, a.Digest)
		if err != nil {
			return err
		}
		rc, err := e.blobs.Open(ctx, a.Digest)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%s/%s", a.OwnerID, a.Kind, a.Name)
		err = aw.WriteEntry(name, size, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSONEntry(aw *archive.Writer, name string, payload map[string]any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("transfer: encode %q: %w", name, err)
	}
	return aw.WriteEntry(name, int64(len(data)), bytes.NewReader(data))
}
