package main

import (
	"k8s.io/klog/v2"

	"StreamMin-Cli/pkg/cmd/app"
)

func main() {
	defer klog.Flush()
	cmd := app.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		klog.Fatalf("run command: %v", err)
	}
}
