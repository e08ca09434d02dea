package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quillsec/quill/internal/transfer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import document roots from an archive",
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	importCmd.AddCommand(importProjectCmd())
	importCmd.AddCommand(importDesignCmd())
	importCmd.AddCommand(importTemplateCmd())
}

// openArchive opens the input file, or stdin when file is "-".
func openArchive(file string) (io.ReadCloser, error) {
	if file == "-" {
		return os.Stdin, nil
	}
	return os.Open(file)
}

func importProjectCmd() *cobra.Command {
	var file string

	command := &cobra.Command{
		Use:   "project",
		Short: "import a project archive",
		Run: func(cmd *cobra.Command, args []string) {
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			r, err := openArchive(file)
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			defer r.Close()

			importer := transfer.NewImporter(app.store, app.blobs)
			projects, err := importer.ImportProjects(cmd.Context(), r, app.codec)
			if err != nil {
				color.Red("import failed: %v", err)
				return
			}
			for _, p := range projects {
				color.Green("imported project %s (%s)", p.Name, p.ID)
			}
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "-", "archive file, - for stdin")

	return command
}

func importDesignCmd() *cobra.Command {
	var file string

	command := &cobra.Command{
		Use:   "design",
		Short: "import a report design archive",
		Run: func(cmd *cobra.Command, args []string) {
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			r, err := openArchive(file)
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			defer r.Close()

			importer := transfer.NewImporter(app.store, app.blobs)
			types, err := importer.ImportProjectTypes(cmd.Context(), r, app.codec)
			if err != nil {
				color.Red("import failed: %v", err)
				return
			}
			for _, t := range types {
				color.Green("imported design %s (%s)", t.Name, t.ID)
			}
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "-", "archive file, - for stdin")

	return command
}

func importTemplateCmd() *cobra.Command {
	var file string

	command := &cobra.Command{
		Use:   "template",
		Short: "import a finding template archive",
		Run: func(cmd *cobra.Command, args []string) {
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			r, err := openArchive(file)
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			defer r.Close()

			importer := transfer.NewImporter(app.store, app.blobs)
			templates, err := importer.ImportTemplates(cmd.Context(), r, app.codec)
			if err != nil {
				color.Red("import failed: %v", err)
				return
			}
			for _, t := range templates {
				color.Green("imported template %s", t.ID)
			}
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "-", "archive file, - for stdin")

	return command
}
