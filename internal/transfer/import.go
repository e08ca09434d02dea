package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/archive"
	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/codec"
	"github.com/quillsec/quill/internal/compress"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
)

// Attachment entries are scoped by the exporting side's owner id so archives
// holding several roots stay unambiguous: "<owner-id>-images/<name>".
var attachmentEntryPattern = regexp.MustCompile(`^([0-9a-fA-F-]{36})-(images|assets|files)/(.+)$`)

// Importer reconstructs document roots from archive streams. Each Import call
// runs in one store transaction: either every root in the archive becomes
// visible or none does.
type Importer struct {
	store store.Store
	blobs *blob.Store
}

func NewImporter(st store.Store, blobs *blob.Store) *Importer {
	return &Importer{store: st, blobs: blobs}
}

type stagedAttachment struct {
	ownerID string // archive-side owner id
	kind    model.AttachmentKind
	name    string
	digest  string
}

// stagedArchive is the fully read archive before materialization. Entries are
// readable once, so attachment bytes go to the blob store as they stream by;
// writtenDigests records them for physical cleanup after the transaction.
type stagedArchive struct {
	projects       []*codec.ProjectBundle
	types          map[string]*codec.ProjectTypeBundle
	typeOrder      []string
	templates      []*codec.TemplateBundle
	attachments    []stagedAttachment
	writtenDigests []string
}

// readArchive drains the stream, decoding entity entries and spooling
// attachment bytes into the blob store through tx. accept filters the entity
// domains this import operation understands; anything else fails the import
// before materialization begins.
func (i *Importer) readArchive(ctx context.Context, tx store.Store, r io.Reader, c compress.Codec, accept mapset.Set[string]) (*stagedArchive, error) {
	staged := &stagedArchive{types: map[string]*codec.ProjectTypeBundle{}}
	ar, err := archive.NewReader(r, c)
	if err != nil {
		return staged, err
	}
	defer ar.Close()

	blobs := i.blobs.WithStore(tx)
	for {
		entry, err := ar.Next()
		if err == io.EOF {
			return staged, nil
		}
		if err != nil {
			return staged, err
		}

		if m := attachmentEntryPattern.FindStringSubmatch(entry.Name); m != nil {
			digest, _, err := blobs.Put(ctx, entry)
			if err != nil {
				return staged, err
			}
			staged.writtenDigests = append(staged.writtenDigests, digest)
			staged.attachments = append(staged.attachments, stagedAttachment{
				ownerID: m[1],
				kind:    model.AttachmentKind(m[2]),
				name:    model.SanitizeFileName(m[3]),
				digest:  digest,
			})
			continue
		}

		if !strings.HasSuffix(entry.Name, ".json") {
			return staged, fmt.Errorf("%w: unexpected archive entry %q", codec.ErrValidation, entry.Name)
		}
		var payload map[string]any
		if err := json.NewDecoder(entry).Decode(&payload); err != nil {
			// a truncated container surfaces through the entry reader and is
			// not a validation failure
			if errors.Is(err, archive.ErrFormat) {
				return staged, err
			}
			return staged, fmt.Errorf("%w: entry %q: invalid JSON: %v", codec.ErrValidation, entry.Name, err)
		}
		f, err := codec.PayloadFormat(payload)
		if err != nil {
			return staged, fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		if !accept.Contains(f.Domain) {
			return staged, fmt.Errorf("%w: entry %q has kind %q, wrong archive for this import", codec.ErrValidation, entry.Name, f.Domain)
		}

		switch f.Domain {
		case codec.DomainProjects:
			b, err := codec.DecodeProject(payload)
			if err != nil {
				return staged, err
			}
			staged.projects = append(staged.projects, b)
		case codec.DomainProjectTypes:
			b, err := codec.DecodeProjectType(payload)
			if err != nil {
				return staged, err
			}
			if _, dup := staged.types[b.Type.ID]; !dup {
				staged.typeOrder = append(staged.typeOrder, b.Type.ID)
			}
			staged.types[b.Type.ID] = b
		case codec.DomainTemplates:
			b, err := codec.DecodeTemplate(payload)
			if err != nil {
				return staged, err
			}
			staged.templates = append(staged.templates, b)
		}
	}
}

// materializeAttachments creates the attachment rows once every owner exists.
// owners maps archive-side ids to destination ids; owners listed in dropped
// already exist in the destination and keep their current attachment set, so
// their spooled blobs are released again.
func materializeAttachments(ctx context.Context, tx store.Store, blobs *blob.Store, staged []stagedAttachment, owners map[string]string, dropped mapset.Set[string]) error {
	for _, a := range staged {
		if dropped.Contains(a.ownerID) {
			if err := blobs.Decref(ctx, a.digest); err != nil {
				return err
			}
			continue
		}
		ownerID, ok := owners[a.ownerID]
		if !ok {
			return fmt.Errorf("%w: attachment entry for unknown entity %s", codec.ErrValidation, a.ownerID)
		}
		att := &model.Attachment{
			ID:      uuid.NewString(),
			OwnerID: ownerID,
			Kind:    a.kind,
			Name:    a.name,
			Digest:  a.digest,
		}
		if err := tx.CreateAttachment(ctx, att); err != nil {
			return err
		}
	}
	return nil
}

// cleanup removes blob files whose spooled content ended up unreferenced,
// after the transaction committed or rolled back.
func (i *Importer) cleanup(ctx context.Context, digests []string) {
	for _, d := range digests {
		if err := i.blobs.RemoveIfUnreferenced(ctx, d); err != nil {
			logrus.Warnf("import: cleanup of blob %s failed: %v", d, err)
		}
	}
}

// ImportProjects reconstructs every project in the archive, together with the
// designs they depend on. Returns the created projects tagged as imported.
func (i *Importer) ImportProjects(ctx context.Context, r io.Reader, c compress.Codec) ([]*model.Project, error) {
	var (
		created []*model.Project
		digests []string
	)
	err := i.store.Transaction(ctx, func(tx store.Store) error {
		staged, err := i.readArchive(ctx, tx, r, c, mapset.NewSet(codec.DomainProjects, codec.DomainProjectTypes))
		digests = staged.writtenDigests
		if err != nil {
			return err
		}
		if len(staged.projects) == 0 {
			return fmt.Errorf("%w: archive contains no project", codec.ErrValidation)
		}

		owners := map[string]string{}
		createdTypes := mapset.NewSet[string]()
		dropped := mapset.NewSet[string]()
		res := newResolver(tx)
		for _, b := range staged.projects {
			p, err := materializeProject(ctx, tx, res, b, staged.types, owners, createdTypes, dropped)
			if err != nil {
				return err
			}
			created = append(created, p)
		}
		if err := materializeAttachments(ctx, tx, i.blobs.WithStore(tx), staged.attachments, owners, dropped); err != nil {
			return err
		}
		return nil
	})
	i.cleanup(ctx, digests)
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		logrus.Infof("imported project %s (%s)", p.Name, p.ID)
	}
	return created, nil
}

// ImportProjectTypes reconstructs every standalone design in the archive.
func (i *Importer) ImportProjectTypes(ctx context.Context, r io.Reader, c compress.Codec) ([]*model.ProjectType, error) {
	var (
		created []*model.ProjectType
		digests []string
	)
	err := i.store.Transaction(ctx, func(tx store.Store) error {
		staged, err := i.readArchive(ctx, tx, r, c, mapset.NewSet(codec.DomainProjectTypes))
		digests = staged.writtenDigests
		if err != nil {
			return err
		}
		if len(staged.typeOrder) == 0 {
			return fmt.Errorf("%w: archive contains no design", codec.ErrValidation)
		}

		owners := map[string]string{}
		for _, oldID := range staged.typeOrder {
			t := staged.types[oldID].Type
			t.ID = uuid.NewString()
			t.Source = model.SourceImported
			t.LinkedProjectID = nil
			t.ClearLock()
			if err := tx.CreateProjectType(ctx, t); err != nil {
				return err
			}
			owners[oldID] = t.ID
			created = append(created, t)
		}
		return materializeAttachments(ctx, tx, i.blobs.WithStore(tx), staged.attachments, owners, mapset.NewSet[string]())
	})
	i.cleanup(ctx, digests)
	if err != nil {
		return nil, err
	}
	for _, t := range created {
		logrus.Infof("imported design %s (%s)", t.Name, t.ID)
	}
	return created, nil
}

// ImportTemplates reconstructs every finding template in the archive.
func (i *Importer) ImportTemplates(ctx context.Context, r io.Reader, c compress.Codec) ([]*model.FindingTemplate, error) {
	var (
		created []*model.FindingTemplate
		digests []string
	)
	err := i.store.Transaction(ctx, func(tx store.Store) error {
		staged, err := i.readArchive(ctx, tx, r, c, mapset.NewSet(codec.DomainTemplates))
		digests = staged.writtenDigests
		if err != nil {
			return err
		}
		if len(staged.templates) == 0 {
			return fmt.Errorf("%w: archive contains no template", codec.ErrValidation)
		}

		owners := map[string]string{}
		for _, b := range staged.templates {
			t := b.Template
			oldID := t.ID
			t.ID = uuid.NewString()
			t.Source = model.SourceImported
			t.CopyOfID = nil
			t.ClearLock()
			if err := tx.CreateTemplate(ctx, t); err != nil {
				return err
			}
			for _, tr := range b.Translations {
				tr.ID = uuid.NewString()
				tr.TemplateID = t.ID
				if err := tx.CreateTranslation(ctx, tr); err != nil {
					return err
				}
			}
			owners[oldID] = t.ID
			created = append(created, t)
		}
		return materializeAttachments(ctx, tx, i.blobs.WithStore(tx), staged.attachments, owners, mapset.NewSet[string]())
	})
	i.cleanup(ctx, digests)
	if err != nil {
		return nil, err
	}
	for _, t := range created {
		logrus.Infof("imported template %s", t.ID)
	}
	return created, nil
}
