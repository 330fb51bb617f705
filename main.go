package main

import "github.com/frahmantamala/keyword-research-api/cmd"

func main() {
	cmd.Execute()
}
