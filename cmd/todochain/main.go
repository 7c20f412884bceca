package main

import "github.com/vietddude/todochain/internal/cli"

func main() {
	cli.Execute()
}
