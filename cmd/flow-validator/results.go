package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"flow-validator/internal/model"
)

func formatPath(p model.Path) string {
	return strings.Join(p.Nodes, ">")
}

func writeResults(path string, results []model.TupleResult) error {
	f, err := os.Create(path)
	if err != nil {
		slog.Error("Failed to create output file", "path", path, "error", err)
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"statement", "src", "dst", "lambda", "path_count", "paths", "error"})
	for _, r := range results {
		paths := make([]string, len(r.Paths))
		for i, p := range r.Paths {
			paths[i] = formatPath(p)
		}
		w.Write([]string{
			strconv.Itoa(r.Statement),
			r.Src.String(),
			r.Dst.String(),
			r.Lambda,
			strconv.Itoa(len(r.Paths)),
			strings.Join(paths, ";"),
			r.Error,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeViolations(path string, violations []model.Violation) error {
	f, err := os.Create(path)
	if err != nil {
		slog.Error("Failed to create violations file", "path", path, "error", err)
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"statement", "src", "dst", "lambda", "constraint", "counter_example"})
	for _, v := range violations {
		counter := ""
		if v.CounterExample != nil {
			counter = formatPath(*v.CounterExample)
		}
		w.Write([]string{
			strconv.Itoa(v.Statement),
			v.Src.String(),
			v.Dst.String(),
			v.Lambda,
			constraintString(v.Constraint),
			counter,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func constraintString(c model.Constraint) string {
	switch c.Type {
	case model.ConstraintPathLength:
		return fmt.Sprintf("%s<=%d", c.Type, c.MaxLinks)
	case model.ConstraintLinkAvoidance:
		links := make([]string, len(c.Links))
		for i, l := range c.Links {
			links[i] = l.String()
		}
		return fmt.Sprintf("%s(%s)", c.Type, strings.Join(links, " "))
	}
	return string(c.Type)
}
