package main

import "github.com/RyanBlaney/sonido-harmony/cmd"

func main() {
	cmd.Execute()
}
