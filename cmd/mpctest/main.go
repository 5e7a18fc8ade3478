// Command mpctest is the golden-file test runner for the compiler: it
// compiles every .pas file under a directory, interprets the result, and
// compares program output against the sibling .golden file. Results are
// cached by source hash so unchanged files are skipped.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/mpclang/mpc/pkg/driver"
	"github.com/mpclang/mpc/pkg/vm"
)

const (
	cRed   = "\033[31m"
	cGreen = "\033[32m"
	cBlue  = "\033[34m"
	cNone  = "\033[0m"
)

var (
	update    = flag.Bool("update", false, "rewrite golden files from current output")
	noCache   = flag.Bool("no-cache", false, "ignore the result cache and rerun everything")
	cacheFile = flag.String("cache", ".mpctest-cache.json", "cache file path, relative to the test directory")
	maxSteps  = flag.Int("max-steps", 1_000_000, "VM step budget per program")
)

// cache maps source file path to the xxhash of the content that last
// passed.
type cache map[string]string

func loadCache(path string) cache {
	c := make(cache)
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return make(cache)
	}
	return c
}

func (c cache) save(path string) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

func hashSource(content []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(content))
}

func goldenPath(sourceFile string) string {
	return strings.TrimSuffix(sourceFile, filepath.Ext(sourceFile)) + ".golden"
}

// runFile compiles and interprets one source file, returning its output.
func runFile(path string, content []byte) (string, error) {
	code, err := driver.Compile(path, string(content))
	if err != nil {
		return "", err
	}
	prog, err := vm.Load(code)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	m := vm.NewMachine(prog, &out)
	m.MaxSteps = *maxSteps
	if err := m.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func main() {
	log.SetFlags(0)
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: mpctest [flags] <test-dir>")
	}
	dir := flag.Arg(0)

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".pas" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("%s[ERROR]%s %v", cRed, cNone, err)
	}
	sort.Strings(files)

	cachePath := filepath.Join(dir, *cacheFile)
	results := loadCache(cachePath)
	if *noCache {
		results = make(cache)
	}

	passed, failed, skipped := 0, 0, 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("%s[ERROR]%s %v", cRed, cNone, err)
		}
		hash := hashSource(content)
		if !*update && results[file] == hash {
			skipped++
			continue
		}

		got, err := runFile(file, content)
		if err != nil {
			log.Printf("%s[FAIL]%s %s: %v", cRed, cNone, file, err)
			failed++
			delete(results, file)
			continue
		}

		golden := goldenPath(file)
		if *update {
			if err := os.WriteFile(golden, []byte(got), 0o644); err != nil {
				log.Fatalf("%s[ERROR]%s %v", cRed, cNone, err)
			}
			log.Printf("%s[GOLDEN]%s %s", cBlue, cNone, golden)
			results[file] = hash
			passed++
			continue
		}

		want, err := os.ReadFile(golden)
		if err != nil {
			log.Printf("%s[FAIL]%s %s: missing golden file (run with -update)", cRed, cNone, file)
			failed++
			delete(results, file)
			continue
		}
		if diff := cmp.Diff(string(want), got); diff != "" {
			log.Printf("%s[FAIL]%s %s: output mismatch (-want +got):\n%s", cRed, cNone, file, diff)
			failed++
			delete(results, file)
			continue
		}
		log.Printf("%s[PASS]%s %s", cGreen, cNone, file)
		results[file] = hash
		passed++
	}

	results.save(cachePath)
	log.Printf("%d passed, %d failed, %d cached", passed, failed, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}
