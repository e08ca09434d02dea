package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quillsec/quill/internal/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "inspect and administer edit locks",
}

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	lockCmd.AddCommand(lockStatusCmd())
	lockCmd.AddCommand(lockReleaseCmd())
}

func lockResource(kind, id string) (lock.Resource, bool) {
	switch kind {
	case "section":
		return lock.Section(id), true
	case "finding":
		return lock.Finding(id), true
	case "note":
		return lock.Note(id), true
	case "design":
		return lock.ProjectType(id), true
	case "template":
		return lock.Template(id), true
	}
	return lock.Resource{}, false
}

func lockStatusCmd() *cobra.Command {
	var kind, id string

	command := &cobra.Command{
		Use:   "status",
		Short: "show the lock state of an entity",
		Run: func(cmd *cobra.Command, args []string) {
			res, ok := lockResource(kind, id)
			if !ok || id == "" {
				color.Red("usage: --kind section|finding|note|design|template --id <id>")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			m := lock.NewManager(app.store, app.cfg.MaxLockTime)
			holder, err := m.Holder(cmd.Context(), res)
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			if holder == nil {
				color.Green("%s %s is unlocked", kind, id)
				return
			}
			color.Yellow("%s %s is locked by %s", kind, id, *holder)
		},
	}

	command.Flags().StringVarP(&kind, "kind", "k", "", "entity kind")
	command.Flags().StringVarP(&id, "id", "i", "", "entity id")

	return command
}

func lockReleaseCmd() *cobra.Command {
	var kind, id, user string

	command := &cobra.Command{
		Use:   "release",
		Short: "release a user's lock on an entity",
		Run: func(cmd *cobra.Command, args []string) {
			res, ok := lockResource(kind, id)
			if !ok || id == "" || user == "" {
				color.Red("usage: --kind section|finding|note|design|template --id <id> --user <user-id>")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			m := lock.NewManager(app.store, app.cfg.MaxLockTime)
			released, err := m.Release(cmd.Context(), res, user)
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			if released {
				color.Green("released")
				return
			}
			color.Yellow("not released: %s holds no lock on %s %s", user, kind, id)
		},
	}

	command.Flags().StringVarP(&kind, "kind", "k", "", "entity kind")
	command.Flags().StringVarP(&id, "id", "i", "", "entity id")
	command.Flags().StringVarP(&user, "user", "u", "", "holding user id")

	return command
}
