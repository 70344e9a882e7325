// Command amx-viewer is an interactive TUI debugger for AMX modules:
// disassembly, registers and stack refresh live while stepping the
// machine one instruction at a time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/disasm"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

func main() {
	public := flag.String("public", "", "public function to run instead of main")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-public name] <file.amx>\n", os.Args[0])
		os.Exit(1)
	}

	buf, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read %q: %v.", flag.Arg(0), err)
	}
	hdr, ok := op.ParseHeader(buf)
	if !ok {
		log.Fatalf("%q is not an AMX module.", flag.Arg(0))
	}

	switch hdr.Magic {
	case op.Magic16:
		err = view[uint16, int16](buf, *public)
	case op.Magic32:
		err = view[uint32, int32](buf, *public)
	case op.Magic64:
		err = view[uint64, int64](buf, *public)
	default:
		err = fmt.Errorf("unrecognized magic %#04x", hdr.Magic)
	}
	if err != nil {
		log.Fatalf("%v.", err)
	}
}

type viewer[C op.Cell, S op.SCell] struct {
	app *tview.Application

	disasmView *tview.TextView
	regsView   *tview.TextView
	stackView  *tview.TextView
	logsView   *tview.TextView

	next chan struct{}
	quit chan struct{}

	paused   bool
	pausedMu sync.Mutex

	quitOnce sync.Once
}

func newViewer[C op.Cell, S op.SCell]() *viewer[C, S] {
	app := tview.NewApplication().EnableMouse(true)

	newTextView := func(title string) *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetTitle(title).SetBorder(true)
		return tv
	}

	v := &viewer[C, S]{
		app:        app,
		disasmView: newTextView("Code"),
		regsView:   newTextView("Registers"),
		stackView:  newTextView("Stack"),
		logsView:   newTextView("Log"),
		next:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		paused:     true,
	}
	v.logsView.ScrollToEnd()

	rightPane := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.regsView, 0, 1, false).
		AddItem(v.stackView, 0, 2, false).
		AddItem(v.logsView, 0, 2, false)

	flex := tview.NewFlex().
		AddItem(v.disasmView, 0, 2, true).
		AddItem(rightPane, 0, 1, false)

	app.SetRoot(flex, true)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			v.stop()
			return nil
		}
		switch event.Rune() {
		case 'n':
			select {
			case v.next <- struct{}{}:
			default:
			}
			return nil
		case ' ':
			v.pausedMu.Lock()
			v.paused = !v.paused
			v.pausedMu.Unlock()
			select {
			case v.next <- struct{}{}:
			default:
			}
			return nil
		case 'q':
			v.stop()
			return nil
		}
		return event
	})
	return v
}

func (v *viewer[C, S]) stop() {
	v.quitOnce.Do(func() { close(v.quit) })
	v.app.Stop()
}

func (v *viewer[C, S]) logf(format string, args ...any) {
	fmt.Fprintf(v.logsView, format+"\n", args...)
}

// refresh repaints every pane from the machine state at the current step.
func (v *viewer[C, S]) refresh(vm *amx.VM[C, S], code []C) {
	cur := fmt.Sprintf("%08x", uint64(vm.CIP))
	var sb strings.Builder
	for _, line := range strings.Split(disasm.Sprint[C](code), "\n") {
		if strings.HasPrefix(line, cur) {
			fmt.Fprintf(&sb, "[black:yellow]%s[-:-]\n", line)
		} else {
			sb.WriteString(line + "\n")
		}
	}
	v.disasmView.SetText(sb.String())

	v.regsView.SetText(fmt.Sprintf(
		"PRI %#0*x\nALT %#0*x\nCIP %#0*x\nFRM %#0*x\nSTK %#0*x\nSTP %#0*x\nHEA %#0*x",
		16, uint64(vm.PRI), 16, uint64(vm.ALT), 16, uint64(vm.CIP),
		16, uint64(vm.FRM), 16, uint64(vm.STK), 16, uint64(vm.STP), 16, uint64(vm.HEA)))

	var st strings.Builder
	for i, addr := 0, vm.STK; i < 32 && addr < vm.STP; i, addr = i+1, addr+vm.CellSize() {
		p := vm.DataV2P(addr)
		if p == nil {
			break
		}
		marker := " "
		if addr == vm.FRM {
			marker = "F"
		}
		fmt.Fprintf(&st, "%s [%06x] %#x\n", marker, uint64(addr), uint64(*p))
	}
	v.stackView.SetText(st.String())
}

func view[C op.Cell, S op.SCell](buf []byte, public string) error {
	v := newViewer[C, S]()

	code, res := loader.ExtractCode[C](buf)
	if res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}

	hook := func(vm *amx.VM[C, S], l *loader.Loader[C, S], user any) op.Error {
		v.app.QueueUpdateDraw(func() { v.refresh(vm, code) })
		v.pausedMu.Lock()
		paused := v.paused
		v.pausedMu.Unlock()
		if !paused {
			select {
			case <-v.quit:
				return op.ErrCallbackAbort
			default:
				return op.Success
			}
		}
		select {
		case <-v.next:
			return op.Success
		case <-v.quit:
			return op.ErrCallbackAbort
		}
	}

	l := loader.NewDefault[C, S]()
	if res := l.Init(buf, loader.Callbacks[C, S]{OnSingleStep: hook}); res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}

	entry := l.GetMain()
	if public != "" {
		entry = l.GetPublic(public)
	}
	if entry == 0 {
		return fmt.Errorf("no entry point")
	}

	go func() {
		ret, err := l.VM().Call(entry)
		v.app.QueueUpdateDraw(func() {
			switch err {
			case op.Success:
				v.logf("returned: %d", int64(S(ret)))
			case op.ErrHalt:
				v.logf("halted with %d", int64(S(ret)))
			default:
				v.logf("stopped: %v", err)
			}
		})
	}()

	v.logf("n: step, space: run/pause, q: quit")
	return v.app.Run()
}
