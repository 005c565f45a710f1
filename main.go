// triptych sends one prompt to up to three language models and streams their
// replies side by side.
package main

import "github.com/linanwx/triptych/cmd"

func main() {
	cmd.Execute()
}
