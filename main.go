package main

import "github.com/darmiel/entitled/cmd"

func main() {
	cmd.Execute()
}
