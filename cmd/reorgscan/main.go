package main

import "github.com/vietddude/reorgscan/internal/cli"

func main() {
	cli.Execute()
}
