package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/Urethramancer/asm64/core"
	"github.com/Urethramancer/asm64/x64"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var flags struct {
	logLevel string
	mode32   bool
}

var rootCmd = &cobra.Command{
	Use:   "x64dump",
	Short: "Assemble a built-in demo program and dump the machine code",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(flags.logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := x64.Mode64
		if flags.mode32 {
			mode = x64.Mode32
		}
		buf, err := build(mode)
		if err != nil {
			return err
		}
		dump(buf)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "error", "logging level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&flags.mode32, "m32", false, "assemble for 32-bit mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// build assembles a small countdown loop followed by a data block, enough
// to exercise branches, label-relative data access and finalization.
func build(mode x64.Mode) (*core.Buffer, error) {
	s := x64.NewStream(mode)
	data := s.DefineLabel("data")

	var err error
	emit := func(in *x64.Inst) {
		if err == nil {
			err = s.Emit(in)
		}
	}

	emit(x64.Mov(x64.ECX, x64.Imm32(10)))
	loop, lerr := s.Label("loop")
	if lerr != nil {
		return nil, lerr
	}
	emit(x64.Dec(x64.ECX))
	emit(x64.Jne(x64.Ref(loop)))
	emit(x64.Mov(x64.EAX, x64.Ref(data)))
	emit(x64.Ret())
	if err != nil {
		return nil, err
	}

	if err := s.Align(8); err != nil {
		return nil, err
	}
	if err := s.Bind(data); err != nil {
		return nil, err
	}
	if err := s.DWord(0xDEADBEEF); err != nil {
		return nil, err
	}
	if err := s.Addr(loop); err != nil {
		return nil, err
	}
	return s.Finalize()
}

// dump prints the finished code: spaced rows with offsets on a terminal,
// one plain hex string when piped.
func dump(buf *core.Buffer) {
	code := buf.Bytes()
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(hex.EncodeToString(code))
		return
	}
	for off := 0; off < buf.Len(); off += 16 {
		end := off + 16
		if end > buf.Len() {
			end = buf.Len()
		}
		fmt.Printf("%08x ", off)
		for _, b := range code[off:end] {
			fmt.Printf(" %02x", b)
		}
		fmt.Println()
	}
	labels := buf.LabelOffsets()
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-16s %#x\n", name, labels[name])
	}
}
