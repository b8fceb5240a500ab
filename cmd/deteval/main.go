package main

import "github.com/MeKo-Tech/deteval/cmd/deteval/cmd"

func main() {
	cmd.Execute()
}
