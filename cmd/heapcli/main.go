// Command heapcli is a line-oriented REPL over a heap-file storage
// manager: CREATE, DESTROY, INSERT, SELECT, UPDATE, DELETE, COUNT, SCAN,
// EXIT.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"flag"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/catalog"
	"github.com/malzahar-project/heapdb/config"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	abs, _ := filepath.Abs(*cfgPath)
	cfg, err := config.Load(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.LogLevel)

	dm := disk.NewManager(cfg.DataDir, cfg.PageSize, cfg.MaxFileCount, log.WithField("component", "disk"))
	if err := dm.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize disk manager: %v\n", err)
		os.Exit(2)
	}
	bm := buffer.NewManager(dm, cfg.BufferFrames, cfg.PageSize, cfg.ReplacementPolicy, log.WithField("component", "buffer"))
	cat := catalog.New(dm, bm, cfg.PageSize, log.WithField("component", "catalog"))

	repl := NewREPL(cat, bm, log)
	if err := repl.Run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(2)
	}
}
