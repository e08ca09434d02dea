package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quillsec/quill/internal/transfer"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "export document roots to an archive",
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	exportCmd.AddCommand(exportProjectCmd())
	exportCmd.AddCommand(exportDesignCmd())
	exportCmd.AddCommand(exportTemplateCmd())
}

func exportProjectCmd() *cobra.Command {
	var ids []string
	var out string
	var all bool

	command := &cobra.Command{
		Use:   "project",
		Short: "export projects with their designs and attachments",
		Run: func(cmd *cobra.Command, args []string) {
			if len(ids) == 0 {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			exporter := transfer.NewExporter(app.store, app.blobs)
			rc := exporter.ExportProjects(cmd.Context(), app.codec, transfer.ExportOptions{All: all}, ids...)
			if err := writeArchive(rc, out); err != nil {
				color.Red("error: %v", err)
				return
			}
			color.Green("exported %d projects to %s", len(ids), out)
		},
	}

	command.Flags().StringSliceVarP(&ids, "id", "i", nil, "project id (repeatable)")
	command.Flags().StringVarP(&out, "out", "o", "project.tar.gz", "output file")
	command.Flags().BoolVar(&all, "all", false, "include notes, files and unreferenced images")

	return command
}

func exportDesignCmd() *cobra.Command {
	var ids []string
	var out string

	command := &cobra.Command{
		Use:   "design",
		Short: "export report designs with their assets",
		Run: func(cmd *cobra.Command, args []string) {
			if len(ids) == 0 {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			exporter := transfer.NewExporter(app.store, app.blobs)
			rc := exporter.ExportProjectTypes(cmd.Context(), app.codec, ids...)
			if err := writeArchive(rc, out); err != nil {
				color.Red("error: %v", err)
				return
			}
			color.Green("exported %d designs to %s", len(ids), out)
		},
	}

	command.Flags().StringSliceVarP(&ids, "id", "i", nil, "design id (repeatable)")
	command.Flags().StringVarP(&out, "out", "o", "design.tar.gz", "output file")

	return command
}

func exportTemplateCmd() *cobra.Command {
	var ids []string
	var out string

	command := &cobra.Command{
		Use:   "template",
		Short: "export finding templates with their images",
		Run: func(cmd *cobra.Command, args []string) {
			if len(ids) == 0 {
				color.Red("missing: --id")
				return
			}
			app, err := openAppContext()
			if err != nil {
				color.Red("error: %v", err)
				return
			}
			exporter := transfer.NewExporter(app.store, app.blobs)
			rc := exporter.ExportTemplates(cmd.Context(), app.codec, ids...)
			if err := writeArchive(rc, out); err != nil {
				color.Red("error: %v", err)
				return
			}
			color.Green("exported %d templates to %s", len(ids), out)
		},
	}

	command.Flags().StringSliceVarP(&ids, "id", "i", nil, "template id (repeatable)")
	command.Flags().StringVarP(&out, "out", "o", "template.tar.gz", "output file")

	return command
}

// writeArchive streams an export to a file, or stdout when out is "-".
func writeArchive(rc io.ReadCloser, out string) error {
	defer rc.Close()

	w := os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := io.Copy(w, rc)
	return err
}
