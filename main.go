package main

import "github.com/aidyou/ccgateway/cmd"

func main() {
	cmd.Execute()
}
