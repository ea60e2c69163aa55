package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/catalog"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/heap"
)

// REPL dispatches heapcli's line-oriented command set against a Catalog.
type REPL struct {
	cat *catalog.Catalog
	bm  *buffer.Manager
	log *logrus.Logger
}

// NewREPL builds a REPL bound to cat.
func NewREPL(cat *catalog.Catalog, bm *buffer.Manager, log *logrus.Logger) *REPL {
	return &REPL{cat: cat, bm: bm, log: log}
}

// Run reads commands from r, one per line, writing results to w, until
// EXIT or EOF.
func (repl *REPL) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			if err := repl.bm.FlushAll(); err != nil {
				return err
			}
			return nil
		}
		if err := repl.dispatch(line, w); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (repl *REPL) dispatch(line string, w io.Writer) error {
	fields := strings.Fields(line)
	up := strings.ToUpper(fields[0])
	switch up {
	case "CREATE":
		return repl.cmdCreate(fields, w)
	case "DESTROY":
		return repl.cmdDestroy(fields, w)
	case "INSERT":
		return repl.cmdInsert(line, fields, w)
	case "SELECT":
		return repl.cmdSelect(fields, w)
	case "UPDATE":
		return repl.cmdUpdate(line, fields, w)
	case "DELETE":
		return repl.cmdDelete(fields, w)
	case "COUNT":
		return repl.cmdCount(fields, w)
	case "SCAN":
		return repl.cmdScan(fields, w)
	default:
		return fmt.Errorf("unsupported command: %s", fields[0])
	}
}

// CREATE <name>
func (repl *REPL) cmdCreate(fields []string, w io.Writer) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: CREATE <name>")
	}
	if _, err := repl.cat.Open(fields[1]); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}

// DESTROY <name>
func (repl *REPL) cmdDestroy(fields []string, w io.Writer) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: DESTROY <name>")
	}
	if err := repl.cat.Drop(fields[1]); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}

// INSERT <name> <payload...>
func (repl *REPL) cmdInsert(line string, fields []string, w io.Writer) error {
	if len(fields) < 3 {
		return fmt.Errorf("usage: INSERT <name> <payload>")
	}
	hf, err := repl.cat.Open(fields[1])
	if err != nil {
		return err
	}
	payload := strings.TrimSpace(strings.SplitN(line, fields[1], 2)[1])
	rid, err := hf.InsertRecord([]byte(payload))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, rid.String())
	return nil
}

// SELECT <name> <rid>
func (repl *REPL) cmdSelect(fields []string, w io.Writer) error {
	if len(fields) != 3 {
		return fmt.Errorf("usage: SELECT <name> <rid>")
	}
	hf, err := repl.cat.Get(fields[1])
	if err != nil {
		return err
	}
	rid, err := parseRID(fields[2])
	if err != nil {
		return err
	}
	rec, err := hf.SelectRecord(rid)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(rec))
	return nil
}

// UPDATE <name> <rid> <payload...>
func (repl *REPL) cmdUpdate(line string, fields []string, w io.Writer) error {
	if len(fields) < 4 {
		return fmt.Errorf("usage: UPDATE <name> <rid> <payload>")
	}
	hf, err := repl.cat.Get(fields[1])
	if err != nil {
		return err
	}
	rid, err := parseRID(fields[2])
	if err != nil {
		return err
	}
	prefix := fields[1] + " " + fields[2]
	payload := strings.TrimSpace(strings.SplitN(line, prefix, 2)[1])
	if err := hf.UpdateRecord(rid, []byte(payload)); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}

// DELETE <name> <rid>
func (repl *REPL) cmdDelete(fields []string, w io.Writer) error {
	if len(fields) != 3 {
		return fmt.Errorf("usage: DELETE <name> <rid>")
	}
	hf, err := repl.cat.Get(fields[1])
	if err != nil {
		return err
	}
	rid, err := parseRID(fields[2])
	if err != nil {
		return err
	}
	if err := hf.DeleteRecord(rid); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}

// COUNT <name>
func (repl *REPL) cmdCount(fields []string, w io.Writer) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: COUNT <name>")
	}
	hf, err := repl.cat.Get(fields[1])
	if err != nil {
		return err
	}
	n, err := hf.GetRecordCount()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, n)
	return nil
}

// SCAN <name>
func (repl *REPL) cmdScan(fields []string, w io.Writer) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: SCAN <name>")
	}
	hf, err := repl.cat.Get(fields[1])
	if err != nil {
		return err
	}
	sc := hf.OpenScan()
	total := 0
	for {
		rid, rec, err := sc.GetNext()
		if err != nil {
			break
		}
		fmt.Fprintf(w, "%s\t%s\n", rid.String(), string(rec))
		total++
	}
	fmt.Fprintf(w, "Total scanned records = %d\n", total)
	return nil
}

func parseRID(s string) (heap.RID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return heap.RID{}, fmt.Errorf("invalid rid %q: expected fileIdx:pageIdx:slot", s)
	}
	fileIdx, err := strconv.Atoi(parts[0])
	if err != nil {
		return heap.RID{}, fmt.Errorf("invalid rid %q: %w", s, err)
	}
	pageIdx, err := strconv.Atoi(parts[1])
	if err != nil {
		return heap.RID{}, fmt.Errorf("invalid rid %q: %w", s, err)
	}
	slot, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return heap.RID{}, fmt.Errorf("invalid rid %q: %w", s, err)
	}
	return heap.RID{Page: disk.PageID{FileIdx: fileIdx, PageIdx: pageIdx}, Slot: uint16(slot)}, nil
}
