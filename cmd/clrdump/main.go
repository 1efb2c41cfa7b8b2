// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"

	clrmeta "github.com/saferwall/clrmeta"
	"github.com/spf13/cobra"
)

var (
	tableFlag string
	sigFlag   string
)

func prettyPrint(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "\t"); err != nil {
		log.Println("JSON indent error:", err)
		return string(buf)
	}
	return pretty.String()
}

func dumpTableCounts(db *clrmeta.Database) {
	counts := make(map[string]uint32)
	for t := clrmeta.TableID(0); t < clrmeta.TableCount; t++ {
		if db.HasTable(t) {
			counts[t.String()] = db.RowCount(t)
		}
	}
	fmt.Println(prettyPrint(counts))
}

func dumpTableRows(db *clrmeta.Database, name string) error {
	var table clrmeta.TableID
	found := false
	for t := clrmeta.TableID(0); t < clrmeta.TableCount; t++ {
		if t.String() == name {
			table = t
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown table %q", name)
	}

	rows := make([]map[string]any, 0, db.RowCount(table))
	for r := uint32(1); r <= db.RowCount(table); r++ {
		row, err := db.DumpRow(table, r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	fmt.Println(prettyPrint(rows))
	return nil
}

func dumpSignature(sig []byte) error {
	c, err := classifySignature(sig)
	if err != nil {
		return err
	}
	fmt.Println(prettyPrint(c))
	return nil
}

// classifySignature picks the signature grammar to parse sig with from
// its leading calling-convention byte, ECMA-335 §II.23.2: a bare blob
// carries no external tag saying which kind it is, but the blob's own
// first byte does.
func classifySignature(sig []byte) (any, error) {
	if len(sig) == 0 {
		return nil, fmt.Errorf("empty signature blob")
	}
	switch clrmeta.CallingConvention(sig[0]).Kind() {
	case clrmeta.CallConvField:
		return clrmeta.ParseFieldSig(sig)
	case clrmeta.CallConvLocalSig:
		return clrmeta.ParseLocalVarSig(sig)
	case clrmeta.CallConvProperty:
		return clrmeta.ParsePropertySig(sig)
	default:
		return clrmeta.ParseMethodSig(sig)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if sigFlag != "" {
		raw, err := os.ReadFile(sigFlag)
		if err != nil {
			return err
		}
		return dumpSignature(raw)
	}

	if len(args) == 0 {
		return fmt.Errorf("a PE/assembly path is required unless --sig is given")
	}

	pe, err := clrmeta.New(args[0], &clrmeta.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer pe.Close()

	if pe.CLR == nil {
		return fmt.Errorf("%s carries no CLI metadata", args[0])
	}

	if tableFlag != "" {
		return dumpTableRows(pe.CLR, tableFlag)
	}
	dumpTableCounts(pe.CLR)
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "clrdump <path>",
		Short: "Dumps ECMA-335 CLI metadata from a managed PE image",
		Long:  "clrdump reads the CLI metadata root of a .NET assembly or .winmd file and prints table row counts, a chosen table's rows, or a standalone signature blob's parsed shape.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}

	root.Flags().StringVar(&tableFlag, "table", "", "dump every row of the named table (e.g. TypeDef)")
	root.Flags().StringVar(&sigFlag, "sig", "", "parse the file at this path as a standalone signature blob instead of a PE image")

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
