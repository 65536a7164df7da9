package main

import "github.com/chimerakang/iam-session-go/cmd/iamctl/cmd"

func main() {
	cmd.Execute()
}
