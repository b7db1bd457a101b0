package instruction

import (
	"bufio"
	"io"
	"strings"
)

// NewBatch builds one Instruction per path, all sharing host, applying
// configure (if non-nil) to each after construction. Useful for building
// many instructions that share host/port/proxy settings and differ only
// by path, without re-invoking New inside another constructor.
func NewBatch(host string, paths []string, configure func(*Instruction)) ([]*Instruction, error) {
	if host == "" {
		return nil, ErrEmptyHost
	}
	out := make([]*Instruction, 0, len(paths))
	for _, p := range paths {
		instr, err := New(host, p)
		if err != nil {
			return nil, err
		}
		if configure != nil {
			configure(instr)
		}
		out = append(out, instr)
	}
	return out, nil
}

// LoadPathList reads a newline-delimited wordlist from r, skipping blank
// lines and "#"-prefixed comments, and builds one Instruction per line via
// NewBatch.
func LoadPathList(r io.Reader, host string, configure func(*Instruction)) ([]*Instruction, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewBatch(host, paths, configure)
}
