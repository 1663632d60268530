package main

import "riskgate/internal/cli"

func main() {
	cli.Execute()
}
