package main

import "github.com/smokeyworks/smokey/internal/smokeyctl"

func main() {
	smokeyctl.Main()
}
