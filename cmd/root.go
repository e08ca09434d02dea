package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "pentest report exchange tool",
	Example: `quill export project -i <project-id> -o project.tar.gz
quill export project --all -i <project-id> -o project.tar.gz
quill import project -f project.tar.gz
quill export template -i <template-id> -o template.tar.gz
quill copy project -i <project-id>
quill db migrate
quill jobs run`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
