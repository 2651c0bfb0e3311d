package node

import (
	"fmt"
	"os"
	"strings"
)

// LoadContent reads the script a provider feeds to its clients. Every line,
// newline included, is one chunk; blank lines are dropped.
func LoadContent(path string) ([]string, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content file: %w", err)
	}
	var chunks []string
	for _, line := range strings.SplitAfter(string(bz), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		chunks = append(chunks, line)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("content file %s is empty", path)
	}
	return chunks, nil
}
