// Command pagebufctl is an interactive REPL over a pagebuf.Buffer, in the
// same readline-driven shape as the teacher's SQL client (cmd/client).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/pagebuf"
	"github.com/tuannm99/pagebuf/config"
	"github.com/tuannm99/pagebuf/internal/store"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".pagebufctl_history"
	}
	return filepath.Join(home, ".pagebufctl_history")
}

func printHelp() {
	fmt.Println(`commands:
  load <file>             load file's bytes as the buffer's content
  read <start> <end>      print bytes in [start, end)
  insert <addr> <text>    insert text at addr
  delete <start> <end>    delete [start, end) and print what was removed
  overwrite <addr> <text> overwrite starting at addr and print what was replaced
  mark <name> <addr>      set a named mark
  getmark <name>          print a mark's current address
  unmark <name>           remove a named mark
  marks                   list all marks sorted by address
  lines                   print total line count
  line <n>                print the byte span of line n
  undo                    undo the last (coalesced) edit
  redo                    redo the last undone edit
  stats                   print memory and undo statistics
  \q | quit | exit        quit`)
}

func run(b *pagebuf.Buffer, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "\\q", "quit", "exit":
			return nil
		case "\\help", "help":
			printHelp()
		case "load":
			dispatchLoad(b, args)
		case "read":
			dispatchRead(b, args)
		case "insert":
			dispatchInsert(b, line, args)
		case "delete":
			dispatchDelete(b, args)
		case "overwrite":
			dispatchOverwrite(b, line, args)
		case "mark":
			dispatchMark(b, args)
		case "getmark":
			dispatchGetMark(b, args)
		case "unmark":
			dispatchUnmark(b, args)
		case "marks":
			dispatchMarks(b)
		case "lines":
			dispatchLines(b)
		case "line":
			dispatchLine(b, args)
		case "undo":
			dispatchUndo(b)
		case "redo":
			dispatchRedo(b)
		case "stats":
			dispatchStats(b)
		default:
			fmt.Printf("unknown command: %s (try \\help)\n", cmd)
		}
	}
}

func dispatchLoad(b *pagebuf.Buffer, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: load <file>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := b.LoadContent(data); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("loaded %d bytes\n", len(data))
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func dispatchRead(b *pagebuf.Buffer, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: read <start> <end>")
		return
	}
	start, err1 := parseInt64(args[0])
	end, err2 := parseInt64(args[1])
	if err1 != nil || err2 != nil {
		fmt.Println("start/end must be integers")
		return
	}
	got, err := b.ReadRange(start, end)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(got))
}

func dispatchInsert(b *pagebuf.Buffer, line string, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: insert <addr> <text>")
		return
	}
	addr, err := parseInt64(args[0])
	if err != nil {
		fmt.Println("addr must be an integer")
		return
	}
	text := textAfterSecondField(line)
	if err := b.InsertBytes(addr, []byte(text)); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("inserted %d bytes at %d\n", len(text), addr)
}

func dispatchDelete(b *pagebuf.Buffer, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: delete <start> <end>")
		return
	}
	start, err1 := parseInt64(args[0])
	end, err2 := parseInt64(args[1])
	if err1 != nil || err2 != nil {
		fmt.Println("start/end must be integers")
		return
	}
	removed, err := b.DeleteBytes(start, end)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("removed: %q\n", string(removed))
}

func dispatchOverwrite(b *pagebuf.Buffer, line string, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: overwrite <addr> <text>")
		return
	}
	addr, err := parseInt64(args[0])
	if err != nil {
		fmt.Println("addr must be an integer")
		return
	}
	text := textAfterSecondField(line)
	removed, err := b.OverwriteBytes(addr, []byte(text))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("replaced: %q\n", string(removed))
}

// textAfterSecondField returns everything in line after its first two
// whitespace-separated fields, preserving internal spacing of the text
// argument (command insert/overwrite take free-form trailing text).
func textAfterSecondField(line string) string {
	rest := line
	for i := 0; i < 2; i++ {
		rest = strings.TrimLeft(rest, " \t")
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			return ""
		}
		rest = rest[j:]
	}
	return rest[1:]
}

func dispatchMark(b *pagebuf.Buffer, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: mark <name> <addr>")
		return
	}
	addr, err := parseInt64(args[1])
	if err != nil {
		fmt.Println("addr must be an integer")
		return
	}
	if err := b.SetMark(args[0], addr); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func dispatchGetMark(b *pagebuf.Buffer, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: getmark <name>")
		return
	}
	addr, ok := b.GetMark(args[0])
	if !ok {
		fmt.Println("null")
		return
	}
	fmt.Println(addr)
}

func dispatchUnmark(b *pagebuf.Buffer, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unmark <name>")
		return
	}
	b.RemoveMark(args[0])
	fmt.Println("ok")
}

func dispatchMarks(b *pagebuf.Buffer) {
	for _, na := range b.GetAllMarks() {
		fmt.Printf("%s\t%d\n", na.Name, na.Addr)
	}
}

func dispatchLines(b *pagebuf.Buffer) {
	count, exact := b.GetTotalLineCount()
	suffix := ""
	if !exact {
		suffix = " (underestimate: some pages not resident)"
	}
	fmt.Printf("%d%s\n", count, suffix)
}

func dispatchLine(b *pagebuf.Buffer, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: line <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("n must be an integer")
		return
	}
	info, err := b.GetLineInfo(n)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("[%d, %d) exact=%v\n", info.Start, info.End, info.IsExact)
}

func dispatchUndo(b *pagebuf.Buffer) {
	ok, err := b.Undo()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("nothing to undo")
		return
	}
	fmt.Println("ok")
}

func dispatchRedo(b *pagebuf.Buffer) {
	ok, err := b.Redo()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("nothing to redo")
		return
	}
	fmt.Println("ok")
}

func dispatchStats(b *pagebuf.Buffer) {
	mem := b.GetMemoryStats()
	u := b.UndoStats()
	fmt.Printf("pages: total=%d loaded=%d dirty=%d residentBytes=%d\n",
		mem.TotalPages, mem.LoadedPages, mem.DirtyPages, mem.EstimatedResidentBytes)
	fmt.Printf("undo: depth=%d redoDepth=%d lastOp=%d merged=%d\n",
		u.UndoDepth, u.RedoDepth, u.LastOperationNumber, u.MergedCount)
}

func main() {
	var (
		configPath   = flag.String("config", "", "path to a buffer config YAML file (optional)")
		pageStoreDir = flag.String("page-store-dir", "", "directory for a file-backed page store (defaults to in-memory)")
		histPath     = flag.String("history", defaultHistoryPath(), "history file path")
	)
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *pageStoreDir != "" {
		cfg.PageStoreDir = *pageStoreDir
	}

	var pageStore store.PageStore
	if cfg.PageStoreDir != "" {
		fileStore, err := store.NewFileStore(cfg.PageStoreDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "page store: %v\n", err)
			os.Exit(1)
		}
		pageStore = fileStore
	} else {
		pageStore = store.NewMemStore()
	}

	b := pagebuf.New(pagebuf.Config{
		PageSize:            cfg.PageSize,
		MaxLoadedPages:      cfg.MaxLoadedPages,
		MergeTimeWindow:     cfg.MergeTimeWindow(),
		MergeDistanceWindow: cfg.MergeDistanceWindow,
		MaxUndoLevels:       cfg.MaxUndoLevels,
	}, pageStore)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagebuf> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryFile:     *histPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Println("pagebufctl ready, type \\help for help")
	if err := run(b, rl); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
