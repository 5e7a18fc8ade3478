// Command mpc is the MiniPascal compiler CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpclang/mpc/pkg/driver"
	"github.com/mpclang/mpc/pkg/lexer"
	"github.com/mpclang/mpc/pkg/token"
	"github.com/mpclang/mpc/pkg/util"
)

var outFile string

var rootCmd = &cobra.Command{
	Use:   "mpc",
	Short: "mpc — MiniPascal compiler targeting a stack virtual machine",
	Long: `mpc compiles MiniPascal (.pas) source files into textual stack
machine instructions, and can interpret the result directly.

Commands:
  build        Compile a .pas file into a .vm instruction listing
  run          Compile and interpret a .pas file
  dump-tokens  Print the token stream of a .pas file
`,
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build <file.pas>",
	Short: "Compile a MiniPascal source file to VM instructions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		code, err := driver.Compile(args[0], string(source))
		if err != nil {
			return err
		}

		out := outFile
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".vm"
		}
		return os.WriteFile(out, []byte(code), 0o644)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file.pas>",
	Short: "Compile and interpret a MiniPascal source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return driver.Run(args[0], string(source), os.Stdout)
	},
}

var dumpTokensCmd = &cobra.Command{
	Use:   "dump-tokens <file.pas>",
	Short: "Print the token stream of a MiniPascal source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		content := []rune(string(source))
		util.SetSource(args[0], content)
		for _, tok := range lexer.Tokenize(content) {
			name := token.TypeStrings[tok.Type]
			if name == "" {
				name = tok.Value
			}
			if tok.Type == token.EOF {
				name = "<eof>"
			}
			fmt.Printf("%d:%d\t%s\n", tok.Line, tok.Column, name)
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file for the instruction listing")
	rootCmd.AddCommand(buildCmd, runCmd, dumpTokensCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
