package gpu

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed shaders/raycast.comp
var kernelSource string

// DefaultWorkgroupSize is the edge of the square compute workgroup
const DefaultWorkgroupSize = 8

// KernelSource returns the compute kernel specialized for a workgroup edge
func KernelSource(workgroupSize int) string {
	if workgroupSize < 1 {
		workgroupSize = DefaultWorkgroupSize
	}
	return strings.Replace(kernelSource, "#version 430 core\n",
		fmt.Sprintf("#version 430 core\n#define WORKGROUP_SIZE %d\n", workgroupSize), 1)
}
