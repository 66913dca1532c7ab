package main

import "github.com/rickcrawford/markdowninthemiddle/cmd"

func main() {
	cmd.Execute()
}
