// Command visual-diff compares screenshots against accepted base images.
package main

import "github.com/devicelab-dev/visual-diff/pkg/cli"

func main() {
	cli.Execute()
}
