package main

import (
	"github.com/zg04ckpt/listenE-sub002/cmd"
)

func main() {
	cmd.Execute()
}
