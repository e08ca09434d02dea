package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quillsec/quill/internal/service"
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "create an independent copy of a document root",
}

func init() {
	rootCmd.AddCommand(copyCmd)
	copyCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	copyCmd.AddCommand(copyProjectCmd())
	copyCmd.AddCommand(copyDesignCmd())
	copyCmd.AddCommand(copyTemplateCmd())
}

func copyProjectCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "project",
		Short: "copy a project together with a snapshot of its design",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			cp, err := service.NewCopier(app.store, app.blobs).CopyProject(cmd.Context(), id)
			if err != nil {
				color.Red("copy failed: %v", err)
				return
			}
			color.Green("copied project %s -> %s", id, cp.ID)
		},
	}

	command.Flags().StringVarP(&id, "id", "i", "", "project id")

	return command
}

func copyDesignCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "design",
		Short: "copy a report design",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			cp, err := service.NewCopier(app.store, app.blobs).CopyProjectType(cmd.Context(), id)
			if err != nil {
				color.Red("copy failed: %v", err)
				return
			}
			color.Green("copied design %s -> %s", id, cp.ID)
		},
	}

	command.Flags().StringVarP(&id, "id", "i", "", "design id")

	return command
}

func copyTemplateCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "template",
		Short: "copy a finding template",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			cp, err := service.NewCopier(app.store, app.blobs).CopyTemplate(cmd.Context(), id)
			if err != nil {
				color.Red("copy failed: %v", err)
				return
			}
			color.Green("copied template %s -> %s", id, cp.ID)
		},
	}

	command.Flags().StringVarP(&id, "id", "i", "", "template id")

	return command
}
