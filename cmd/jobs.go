package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quillsec/quill/internal/jobs"
	"github.com/quillsec/quill/internal/service"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "run the retention jobs",
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	jobsCmd.AddCommand(runJobsCmd())
}

func runJobsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "run",
		Short: "run the configured retention sweeps until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			projects := service.NewProjectService(app.store, app.blobs)

			var tasks []jobs.CronJob
			if app.cfg.ArchiveProjectsAfter > 0 {
				tasks = append(tasks, jobs.NewArchiveStaleTask(app.cfg.ArchiveSchedule, app.cfg.ArchiveProjectsAfter, projects))
			}
			if app.cfg.DeleteArchivedAfter > 0 {
				tasks = append(tasks, jobs.NewPurgeArchivedTask(app.cfg.DeleteArchivedSchedule, app.cfg.DeleteArchivedAfter, projects))
			}
			if len(tasks) == 0 {
				color.Yellow("no retention timers configured, nothing to run")
				return
			}

			executor := jobs.NewTaskExecutor(tasks...)
			executor.Run()
			logrus.Infof("running %d retention tasks", len(tasks))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			executor.Stop()
		},
	}

	return command
}
