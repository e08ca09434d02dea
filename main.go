package main

import "github.com/quillsec/quill/cmd"

func main() {
	cmd.Execute()
}
