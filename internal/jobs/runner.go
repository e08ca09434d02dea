// Package jobs runs the periodic maintenance tasks on a cron schedule.
package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// CronJob is a named task with a cron schedule.
type CronJob interface {
	Name() string
	Schedule() string
	Run()
}

// TaskExecutor schedules cron jobs and keeps overlapping runs of the same job
// from piling up.
type TaskExecutor struct {
	cron    *cron.Cron
	jobs    []CronJob
	running mapset.Set[CronJob]
	mu      sync.Mutex
}

func NewTaskExecutor(jobs ...CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:    cron.New(),
		jobs:    jobs,
		running: mapset.NewSet[CronJob](),
	}
}

// Run registers every job and starts the cron. Each job runs in its own
// goroutine inside the cron; a job still running when its next tick fires is
// skipped.
func (t *TaskExecutor) Run() {
	for _, job := range t.jobs {
		err := t.cron.AddFunc(job.Schedule(), func() {
			t.mu.Lock()
			if t.running.Contains(job) {
				t.mu.Unlock()
				logrus.Warnf("task %s is still running, skipping tick", job.Name())
				return
			}
			t.running.Add(job)
			t.mu.Unlock()

			defer func() {
				t.mu.Lock()
				defer t.mu.Unlock()
				t.running.Remove(job)
			}()

			job.Run()
		})
		if err != nil {
			logrus.Errorf("failed to add task %s to cron: %v", job.Name(), err)
			panic(err)
		}
	}

	t.cron.Start()
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all tasks")
	t.cron.Stop()
}
