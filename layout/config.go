package layout

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// ParseError reports a malformed line of a layout file.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}

	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Config describes the partitions and hardware tasks of a system.
type Config struct {
	Partitions []PartitionConfig `toml:"partition"`
	HwTasks    []HwTaskConfig    `toml:"hw_task"`
}

// PartitionConfig describes one partition.
type PartitionConfig struct {
	Name  string `toml:"name"`
	Slots int    `toml:"slots"`
}

// HwTaskConfig describes one hardware task. Buffer sizes are either plain
// byte counts or sizes with units such as 4KiB. An empty timeout selects the
// default one.
type HwTaskConfig struct {
	Name      string   `toml:"name"`
	ID        uint32   `toml:"id"`
	Partition string   `toml:"partition"`
	Bits      string   `toml:"bits"`
	Buffers   []string `toml:"buffers"`
	Timeout   string   `toml:"timeout"`
}

const tokenSeparators = " ,\t\n\r"

// tokenize splits a file into lines of tokens. Empty lines and lines whose
// first token starts with # are skipped. The line numbers of the kept lines
// are returned alongside.
func tokenize(fs afero.Fs, path string) ([][]string, []int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var (
		lines   [][]string
		numbers []int
		n       int
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++

		tokens := strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return strings.ContainsRune(tokenSeparators, r)
		})
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}

		lines = append(lines, tokens)
		numbers = append(numbers, n)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return lines, numbers, nil
}

// ReadTokens reads the arch and hw-task files found under root.
//
// Each line of the arch file is "name slots". Each line of the hw-task file
// is "name id partition bits [buffer...] [timeout=<duration>]".
func ReadTokens(fs afero.Fs, root, archFile, hwTasksFile string) (*Config, error) {
	cfg := &Config{}

	archPath := filepath.Join(root, archFile)
	lines, numbers, err := tokenize(fs, archPath)
	if err != nil {
		return nil, fmt.Errorf("reading arch file: %w", err)
	}

	for i, tokens := range lines {
		if len(tokens) != 2 {
			return nil, &ParseError{archPath, numbers[i], "expected name and slot count"}
		}

		slots, err := strconv.Atoi(tokens[1])
		if err != nil {
			return nil, &ParseError{archPath, numbers[i], "bad slot count " + tokens[1]}
		}

		cfg.Partitions = append(cfg.Partitions, PartitionConfig{
			Name:  tokens[0],
			Slots: slots,
		})
	}

	tasksPath := filepath.Join(root, hwTasksFile)
	lines, numbers, err = tokenize(fs, tasksPath)
	if err != nil {
		return nil, fmt.Errorf("reading hw-tasks file: %w", err)
	}

	for i, tokens := range lines {
		t, err := parseHwTaskLine(tokens)
		if err != nil {
			return nil, &ParseError{tasksPath, numbers[i], err.Error()}
		}

		cfg.HwTasks = append(cfg.HwTasks, t)
	}

	return cfg, nil
}

func parseHwTaskLine(tokens []string) (HwTaskConfig, error) {
	if len(tokens) < 4 {
		return HwTaskConfig{}, fmt.Errorf(
			"expected name, id, partition and bitstream path")
	}

	id, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		return HwTaskConfig{}, fmt.Errorf("bad hw-task id %s", tokens[1])
	}

	t := HwTaskConfig{
		Name:      tokens[0],
		ID:        uint32(id),
		Partition: tokens[2],
		Bits:      tokens[3],
	}

	for _, tok := range tokens[4:] {
		if v, found := strings.CutPrefix(tok, "timeout="); found {
			t.Timeout = v
			continue
		}

		t.Buffers = append(t.Buffers, tok)
	}

	return t, nil
}

// ReadTOML reads a layout.toml file.
func ReadTOML(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{File: path, Msg: err.Error()}
	}

	return cfg, nil
}
