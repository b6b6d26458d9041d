package main

import "github.com/KaramelBytes/fileflow-cli/cmd"

func main() {
	cmd.Execute()
}
