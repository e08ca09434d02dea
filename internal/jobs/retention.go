package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quillsec/quill/internal/service"
)

// ArchiveStaleTask archives projects that have not been touched for the
// configured duration. The archive timer and the purge timer are independent
// settings; neither implies the other.
type ArchiveStaleTask struct {
	projects *service.ProjectService
	after    time.Duration
	cron     string
}

func NewArchiveStaleTask(schedule string, after time.Duration, projects *service.ProjectService) *ArchiveStaleTask {
	return &ArchiveStaleTask{
		projects: projects,
		after:    after,
		cron:     schedule,
	}
}

func (t *ArchiveStaleTask) Name() string {
	return "archive_stale_projects"
}

func (t *ArchiveStaleTask) Schedule() string {
	return t.cron
}

func (t *ArchiveStaleTask) Run() {
	n, err := t.projects.ArchiveStaleProjects(context.Background(), time.Now().Add(-t.after))
	if err != nil {
		logrus.Errorf("archive sweep failed: %v", err)
		return
	}
	if n > 0 {
		logrus.Infof("archive sweep archived %d projects", n)
	}
}

// PurgeArchivedTask deletes projects that have been archived for longer than
// the configured duration.
type PurgeArchivedTask struct {
	projects *service.ProjectService
	after    time.Duration
	cron     string
}

func NewPurgeArchivedTask(schedule string, after time.Duration, projects *service.ProjectService) *PurgeArchivedTask {
	return &PurgeArchivedTask{
		projects: projects,
		after:    after,
		cron:     schedule,
	}
}

func (t *PurgeArchivedTask) Name() string {
	return "purge_archived_projects"
}

func (t *PurgeArchivedTask) Schedule() string {
	return t.cron
}

func (t *PurgeArchivedTask) Run() {
	n, err := t.projects.PurgeArchivedProjects(context.Background(), time.Now().Add(-t.after))
	if err != nil {
		logrus.Errorf("purge sweep failed: %v", err)
		return
	}
	if n > 0 {
		logrus.Infof("purge sweep deleted %d archived projects", n)
	}
}
