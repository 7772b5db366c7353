package app

import (
	"fmt"

	"skusync/internal/config"
	"skusync/internal/skulist"
	"skusync/internal/worker"
)

// LoadSKUs reads the identifier list named by the input section
func LoadSKUs(in config.InputConfig) ([]string, error) {
	if in.File == "" {
		return nil, fmt.Errorf("no input file configured")
	}
	skus, err := skulist.ReadFile(in.File, skulist.Options{Column: in.Column, Sheet: in.Sheet})
	if err != nil {
		return nil, fmt.Errorf("failed to read SKUs from %s: %w", in.File, err)
	}
	return skus, nil
}

// BuildTasks turns identifiers into tasks in input order. Empty identifiers
// are dropped and only the first occurrence of a repeated identifier is
// kept; the repeats are returned separately.
func BuildTasks(skus []string) ([]worker.Task, []string) {
	seen := make(map[string]struct{}, len(skus))
	tasks := make([]worker.Task, 0, len(skus))
	var duplicates []string

	for _, sku := range skus {
		if sku == "" {
			continue
		}
		if _, ok := seen[sku]; ok {
			duplicates = append(duplicates, sku)
			continue
		}
		seen[sku] = struct{}{}
		tasks = append(tasks, worker.Task{SKU: sku, Index: len(tasks)})
	}

	return tasks, duplicates
}
