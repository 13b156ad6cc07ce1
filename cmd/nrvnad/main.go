package main

import "github.com/sanmathigb/nrvna-ai/services/daemon/cli"

func main() {
	cli.Execute()
}
