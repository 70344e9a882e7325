// Command amx-memview animates a module's data segment while it executes:
// one pixel block per cell, colored by content. The stack growing down and
// the heap growing up are visible as the program runs.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/bitmapfont/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

const (
	initialScreenWidth  = 800
	initialScreenHeight = 600

	cellsPerRow   = 64
	stepsPerFrame = 256
)

var fontFace = text.NewGoXFace(bitmapfont.Face)

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
		err = run[uint16, int16](buf, *public)
	case op.Magic32:
		err = run[uint32, int32](buf, *public)
	case op.Magic64:
		err = run[uint64, int64](buf, *public)
	default:
		err = fmt.Errorf("unrecognized magic %#04x", hdr.Magic)
	}
	if err != nil {
		log.Fatalf("%v.", err)
	}
}

// snapshot is the machine state the draw side renders: taken between
// instructions so it is never torn.
type snapshot struct {
	cells    []uint64
	stk, hea uint64
	status   string
}

type game[C op.Cell, S op.SCell] struct {
	vm *amx.VM[C, S]

	step chan struct{}
	quit chan struct{}
	done atomic.Bool
	want atomic.Bool

	mu   sync.Mutex
	snap snapshot

	grid *ebiten.Image
	pix  []byte
}

func (g *game[C, S]) takeSnapshot(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.snap.cells {
		if p := g.vm.DataV2P(C(i) * g.vm.CellSize()); p != nil {
			g.snap.cells[i] = uint64(*p)
		}
	}
	g.snap.stk = uint64(g.vm.STK / g.vm.CellSize())
	g.snap.hea = uint64(g.vm.HEA / g.vm.CellSize())
	if status != "" {
		g.snap.status = status
	}
}

func (g *game[C, S]) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyQ) || ebiten.IsKeyPressed(ebiten.KeyEscape) {
		g.done.Store(true)
		select {
		case <-g.quit:
		default:
			close(g.quit)
		}
		return ebiten.Termination
	}
	if g.done.Load() {
		return nil
	}
	// Ask the hook for a fresh snapshot and hand out this frame's
	// instruction budget.
	g.want.Store(true)
	for range stepsPerFrame {
		select {
		case g.step <- struct{}{}:
		default:
		}
	}
	return nil
}

func (g *game[C, S]) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	for i, v := range g.snap.cells {
		var c color.RGBA
		switch {
		case uint64(i) == g.snap.stk:
			c = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
		case v == 0:
			c = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF}
		default:
			c = color.RGBA{R: byte(v) | 0x40, G: byte(v >> 8), B: byte(v >> 16) | 0x40, A: 0xFF}
		}
		g.pix[i*4+0] = c.R
		g.pix[i*4+1] = c.G
		g.pix[i*4+2] = c.B
		g.pix[i*4+3] = c.A
	}
	status := g.snap.status
	g.mu.Unlock()

	g.grid.WritePixels(g.pix)
	geo := ebiten.DrawImageOptions{}
	geo.GeoM.Scale(10, 10)
	geo.GeoM.Translate(0, 20)
	screen.DrawImage(g.grid, &geo)

	top := &text.DrawOptions{}
	top.GeoM.Translate(4, 2)
	top.ColorScale.ScaleWithColor(color.White)
	text.Draw(screen, status, fontFace, top)
}

func (g *game[C, S]) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func run[C op.Cell, S op.SCell](buf []byte, public string) error {
	l := loader.NewDefault[C, S]()

	g := &game[C, S]{
		step: make(chan struct{}, stepsPerFrame),
		quit: make(chan struct{}),
	}

	hook := func(vm *amx.VM[C, S], l *loader.Loader[C, S], user any) op.Error {
		select {
		case <-g.step:
		case <-g.quit:
			return op.ErrCallbackAbort
		}
		if g.want.Swap(false) {
			g.takeSnapshot("")
		}
		return op.Success
	}

	if res := l.Init(buf, loader.Callbacks[C, S]{OnSingleStep: hook}); res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}
	g.vm = l.VM()

	rows := (l.DataLen() + cellsPerRow - 1) / cellsPerRow
	g.grid = ebiten.NewImage(cellsPerRow, rows)
	g.pix = make([]byte, cellsPerRow*rows*4)
	g.snap.cells = make([]uint64, l.DataLen())
	g.snap.status = "running (q to quit)"

	entry := l.GetMain()
	if public != "" {
		entry = l.GetPublic(public)
	}
	if entry == 0 {
		return fmt.Errorf("no entry point")
	}

	go func() {
		ret, err := l.VM().Call(entry)
		g.done.Store(true)
		switch err {
		case op.Success:
			g.takeSnapshot(fmt.Sprintf("returned: %d (q to quit)", int64(S(ret))))
		case op.ErrHalt:
			g.takeSnapshot(fmt.Sprintf("halted with %d (q to quit)", int64(S(ret))))
		case op.ErrCallbackAbort:
		default:
			g.takeSnapshot(fmt.Sprintf("stopped: %v (q to quit)", err))
		}
	}()

	ebiten.SetWindowTitle("AMX memory - " + flag.Arg(0))
	ebiten.SetWindowSize(initialScreenWidth, initialScreenHeight)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil && err != ebiten.Termination {
		return err
	}
	return nil
}
