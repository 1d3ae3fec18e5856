package main

import "github.com/quocvuong92/osram-cli/cmd"

func main() {
	cmd.Execute()
}
