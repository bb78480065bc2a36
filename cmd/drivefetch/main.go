package main

import "github.com/justin2061/drivefetch/internal/cli"

func main() {
	cli.Execute()
}
