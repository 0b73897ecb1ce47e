package main

import "github.com/gimera-go/gimera/cmd"

func main() {
	cmd.Execute()
}
