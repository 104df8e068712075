// Command kiln compiles and runs tensor programs described in YAML.
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := NewCLI().Execute(); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}
