// Command pagestore is a tiny REPL harness over a ParallelBufferPool and
// an ExtendibleHashIndex[int64], wiring the config-loaded Options into the
// ordinary Go constructors per SPEC_FULL.md §4.7. It is the only place
// that parses flags; config files and environment variables are read for
// it by pkg/config.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pagestore/pkg/buffer"
	"pagestore/pkg/config"
	"pagestore/pkg/index"
	"pagestore/pkg/metrics"
	"pagestore/pkg/storage/page"
)

func main() {
	configPath := flag.String("config", "", "path to a pagestore config file (optional)")
	flag.Parse()

	opts, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if opts.KeyWidth != 8 {
		fmt.Fprintf(os.Stderr, "this harness only drives the int64 key instantiation (key_width=8); got %d\n", opts.KeyWidth)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	collectors := metrics.New(prometheus.DefaultRegisterer)

	pool, err := buffer.NewParallelBufferPool(opts.DataFile, opts.PoolSizePerInstance, opts.NumInstances, sugar, collectors)
	if err != nil {
		sugar.Fatalw("failed to build buffer pool", "error", err)
	}

	idx, err := index.New[int64](pool, index.Int64Codec{}, sugar, collectors)
	if err != nil {
		sugar.Fatalw("failed to build hash index", "error", err)
	}

	fmt.Println("pagestore> insert <key> <page_id> <slot> | get <key> | remove <key> <page_id> <slot> | depth | flush | quit")
	repl(idx, pool)
}

func repl(idx *index.ExtendibleHashIndex[int64], pool *buffer.ParallelBufferPool) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("pagestore> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "insert":
			if len(fields) != 4 {
				fmt.Println("usage: insert <key> <page_id> <slot>")
				continue
			}
			key, pageID, slot, err := parseKeyRID(fields[1], fields[2], fields[3])
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(idx.Insert(key, page.RID{PageID: pageID, Slot: slot}))
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			key, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(idx.Get(key))
		case "remove":
			if len(fields) != 4 {
				fmt.Println("usage: remove <key> <page_id> <slot>")
				continue
			}
			key, pageID, slot, err := parseKeyRID(fields[1], fields[2], fields[3])
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(idx.Remove(key, page.RID{PageID: pageID, Slot: slot}))
		case "depth":
			fmt.Println(idx.GetGlobalDepth())
		case "flush":
			pool.FlushAllPages()
			fmt.Println("ok")
		case "quit", "exit":
			pool.FlushAllPages()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func parseKeyRID(keyStr, pageIDStr, slotStr string) (int64, page.PageID, uint32, error) {
	key, err := strconv.ParseInt(keyStr, 10, 64)
	if err != nil {
		return 0, 0, 0, err
	}
	pageID, err := strconv.ParseInt(pageIDStr, 10, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	slot, err := strconv.ParseUint(slotStr, 10, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	return key, page.PageID(pageID), uint32(slot), nil
}
