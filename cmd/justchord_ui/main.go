package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/audio"
	"github.com/cbegin/justchord-go/internal/prefs"
	"github.com/cbegin/justchord-go/internal/tuning"
)

const (
	windowW = 900
	windowH = 600

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	unlockTimeout = 5 * time.Second
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	panelColor     = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	highlightColor = color.RGBA{0, 0, 128, 255}
	playingColor   = color.RGBA{0, 128, 0, 255}

	bevelLight  = color.RGBA{255, 255, 255, 255}
	bevelDarker = color.RGBA{64, 64, 64, 255}

	lcdColor      = color.RGBA{16, 32, 16, 255}
	overlayColor  = color.RGBA{0, 0, 0, 200}
	sunkenBgColor = color.RGBA{24, 24, 32, 255}
)

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: debug})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// result carries the outcome of a blocking Player call back to Update.
type result struct {
	unlock bool
	slot   justchord.Slot
	on     bool
	err    error
}

type game struct {
	player  *justchord.Player
	store   *prefs.Store
	results chan result
	busy    bool

	status    string
	statusErr bool

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(pl *justchord.Player, store *prefs.Store) *game {
	return &game{
		player:    pl,
		store:     store,
		results:   make(chan result, 8),
		status:    "Click anywhere to enable audio",
		textCache: make(map[string]*ebiten.Image, 256),
		viewW:     windowW,
		viewH:     windowH,
	}
}

func (g *game) Update() error {
	g.pollResults()
	g.handleMouse()
	g.handleKeys()
	return nil
}

func (g *game) pollResults() {
	for {
		select {
		case r := <-g.results:
			g.busy = false
			switch {
			case r.err != nil:
				g.setError("Audio unavailable: " + r.err.Error())
			case r.unlock:
				g.setStatus("Audio enabled")
			case r.on:
				g.setStatus(r.slot.String() + " on")
			case g.player.Unlocked():
				g.setStatus(r.slot.String() + " off")
			default:
				g.setError("Audio is locked")
			}
		default:
			return
		}
	}
}

func (g *game) unlockAsync() {
	if g.busy {
		return
	}
	g.busy = true
	g.setStatus("Enabling audio...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		g.results <- result{unlock: true, err: g.player.Unlock(ctx)}
	}()
}

func (g *game) toggleAsync(slot justchord.Slot) {
	if g.busy {
		return
	}
	g.busy = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		g.results <- result{slot: slot, on: g.player.Toggle(ctx, slot)}
	}()
}

func (g *game) apply(u justchord.Update) {
	if err := g.player.SetParameters(u); err != nil {
		g.setError(err.Error())
		return
	}
	p := g.player.Parameters()
	if g.store != nil {
		g.store.Set(prefs.Prefs{ReferenceFrequency: p.Reference, RootPitch: p.Root})
	}
	g.setStatus(g.player.Display())
}

func (g *game) handleMouse() {
	if !inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return
	}
	if !g.player.Unlocked() {
		g.unlockAsync()
		return
	}
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()
	p := g.player.Parameters()

	for i, r := range l.roots {
		if pointInRect(mx, my, r) {
			root := tuning.PitchClasses[i].Label
			g.apply(justchord.Update{RootPitch: &root})
			return
		}
	}
	for i, r := range l.tones {
		if pointInRect(mx, my, r) {
			g.toggleAsync(justchord.Slot(i))
			return
		}
	}
	switch {
	case pointInRect(mx, my, l.major):
		q := justchord.Major
		g.apply(justchord.Update{Quality: &q})
	case pointInRect(mx, my, l.minor):
		q := justchord.Minor
		g.apply(justchord.Update{Quality: &q})
	case pointInRect(mx, my, l.equal):
		s := justchord.Equal
		g.apply(justchord.Update{Tuning: &s})
	case pointInRect(mx, my, l.just):
		s := justchord.Just
		g.apply(justchord.Update{Tuning: &s})
	case pointInRect(mx, my, l.wave):
		w := p.Waveform.Next()
		g.apply(justchord.Update{Waveform: &w})
	case pointInRect(mx, my, l.octDown):
		o := p.Octave - 1
		g.apply(justchord.Update{Octave: &o})
	case pointInRect(mx, my, l.octUp):
		o := p.Octave + 1
		g.apply(justchord.Update{Octave: &o})
	case pointInRect(mx, my, l.refDown):
		ref := p.Reference - 1
		g.apply(justchord.Update{ReferenceFrequency: &ref})
	case pointInRect(mx, my, l.refUp):
		ref := p.Reference + 1
		g.apply(justchord.Update{ReferenceFrequency: &ref})
	case pointInRect(mx, my, l.stop):
		g.player.StopAll()
		g.setStatus("All tones stopped")
	}
}

func (g *game) handleKeys() {
	if !g.player.Unlocked() {
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
			g.unlockAsync()
		}
		return
	}
	for i, k := range []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3} {
		if inpututil.IsKeyJustPressed(k) {
			g.toggleAsync(justchord.Slot(i))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.player.StopAll()
		g.setStatus("All tones stopped")
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()
	p := g.player.Parameters()

	g.drawLCD(screen, l.lcd)

	g.drawText(screen, "Root", l.roots[0].Min.X, l.roots[0].Min.Y-lineH-4)
	for i, r := range l.roots {
		label := tuning.PitchClasses[i].Label
		g.drawToggleButton(screen, r, label, label == p.Root, highlightColor)
	}

	g.drawToggleButton(screen, l.major, "Major", p.Quality == justchord.Major, highlightColor)
	g.drawToggleButton(screen, l.minor, "Minor", p.Quality == justchord.Minor, highlightColor)
	g.drawToggleButton(screen, l.equal, "Equal", p.System == justchord.Equal, highlightColor)
	g.drawToggleButton(screen, l.just, "Just", p.System == justchord.Just, highlightColor)
	g.drawButton(screen, l.wave, "Wave: "+p.Waveform.String())

	g.drawButton(screen, l.octDown, "-")
	g.drawStepperValue(screen, l.octValue, fmt.Sprintf("Oct %+d", p.Octave))
	g.drawButton(screen, l.octUp, "+")
	g.drawButton(screen, l.refDown, "-")
	g.drawStepperValue(screen, l.refValue, fmt.Sprintf("A4 %.1f", p.Reference))
	g.drawButton(screen, l.refUp, "+")

	names := g.player.ChordNoteNames()
	freqs := g.player.Frequencies()
	playing := g.player.Playing()
	for i, r := range l.tones {
		label := fmt.Sprintf("%d %s %s", i+1, justchord.Slot(i), names[i])
		g.drawToggleButton(screen, r, label, playing[i], playingColor)
		g.drawText(screen, fmt.Sprintf("%.2f Hz", freqs[i]), r.Min.X+12, r.Max.Y-lineH-6)
	}
	g.drawButton(screen, l.stop, "Stop all")

	g.drawSunkenPanel(screen, l.status)
	g.drawStatus(screen, l.status)

	if !g.player.Unlocked() {
		g.drawUnlockOverlay(screen)
	}
}

func (g *game) drawLCD(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), lcdColor)
	drawSunkenBorder(screen, rect)
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(g.player.Display(), maxChars), rect.Min.X+8, rect.Min.Y+8)
	cents := g.player.Deviation()
	g.drawText(screen, fmt.Sprintf("vs ET  %+.1f  %+.1f  %+.1f cents", cents[0], cents[1], cents[2]), rect.Min.X+8, rect.Min.Y+8+lineH+4)
}

func (g *game) drawUnlockOverlay(screen *ebiten.Image) {
	ebitenutil.DrawRect(screen, 0, 0, float64(g.viewW), float64(g.viewH), overlayColor)
	box := image.Rect(g.viewW/2-260, g.viewH/2-60, g.viewW/2+260, g.viewH/2+60)
	g.drawPanel(screen, box)
	msg := "Click to enable audio"
	if g.busy {
		msg = "Enabling audio..."
	}
	x := box.Min.X + (box.Dx()-len(msg)*charW)/2
	g.drawText(screen, msg, x, box.Min.Y+(box.Dy()-lineH)/2)
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, windowW)
	g.viewH = max(outsideH, windowH)
	return g.viewW, g.viewH
}

type uiLayout struct {
	lcd                       image.Rectangle
	roots                     [12]image.Rectangle
	major, minor, equal, just image.Rectangle
	wave                      image.Rectangle
	octDown, octValue, octUp  image.Rectangle
	refDown, refValue, refUp  image.Rectangle
	tones                     [justchord.NumSlots]image.Rectangle
	stop                      image.Rectangle
	status                    image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	w := g.viewW
	h := g.viewH
	pad := 20
	rowH := 44
	gap := 8

	var l uiLayout
	l.lcd = image.Rect(pad, pad, w-pad, pad+2*lineH+24)

	y := l.lcd.Max.Y + lineH + 16
	rootW := (w - 2*pad - 11*gap) / 12
	for i := range l.roots {
		x := pad + i*(rootW+gap)
		l.roots[i] = image.Rect(x, y, x+rootW, y+rowH)
	}

	y += rowH + 16
	x := pad
	next := func(width int) image.Rectangle {
		r := image.Rect(x, y, x+width, y+rowH)
		x += width + gap
		return r
	}
	l.major = next(100)
	l.minor = next(100)
	x += 16
	l.equal = next(100)
	l.just = next(100)
	x += 16
	l.wave = next(w - pad - x)

	y += rowH + 16
	x = pad
	l.octDown = next(rowH)
	l.octValue = next(120)
	l.octUp = next(rowH)
	x += 32
	l.refDown = next(rowH)
	l.refValue = next(160)
	l.refUp = next(rowH)

	y += rowH + 16
	statusH := 40
	statusTop := h - pad - statusH
	toneH := statusTop - 16 - y
	stopW := 140
	toneW := (w - 2*pad - stopW - 3*gap) / 3
	for i := range l.tones {
		tx := pad + i*(toneW+gap)
		l.tones[i] = image.Rect(tx, y, tx+toneW, y+toneH)
	}
	l.stop = image.Rect(w-pad-stopW, y, w-pad, y+toneH)
	l.status = image.Rect(pad, statusTop, w-pad, statusTop+statusH)
	return l
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	g.drawPanel(screen, rect)
	g.drawCentered(screen, rect, label)
}

// drawToggleButton draws a pressed-in button filled with fill when on.
func (g *game) drawToggleButton(screen *ebiten.Image, rect image.Rectangle, label string, on bool, fill color.Color) {
	if !on {
		g.drawButton(screen, rect, label)
		return
	}
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	drawSunkenBorder(screen, rect)
	g.drawCentered(screen, rect, label)
}

func (g *game) drawStepperValue(screen *ebiten.Image, rect image.Rectangle, label string) {
	g.drawSunkenPanel(screen, rect)
	g.drawCentered(screen, rect, label)
}

func (g *game) drawCentered(screen *ebiten.Image, rect image.Rectangle, label string) {
	labelW := len([]rune(label)) * charW
	x := rect.Min.X + (rect.Dx()-labelW)/2
	y := rect.Min.Y + (min(rect.Dy(), 44)-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken 3D bevel (shadow top/left, highlight bottom/right).
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 1000 {
			g.textCache = make(map[string]*ebiten.Image, 256)
		}
		g.textCache[msg] = img
	}
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:maxChars])
	}
	return string(r[:maxChars-3]) + "..."
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", audio.DefaultSampleRate, "output sample rate")
		backend    = flag.String("backend", string(audio.BackendEbiten), "audio backend: ebiten|oto")
		prefsPath  = flag.String("prefs", "", "preferences file (default: user config dir)")
		noPrefs    = flag.Bool("no-prefs", false, "do not read or write saved preferences")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()
	initLogger(*debug)

	b, err := audio.ParseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}

	opts := []justchord.PlayerOption{
		justchord.WithBackend(b),
		justchord.WithSampleRate(*sampleRate),
		justchord.WithLogger(logger),
	}
	var store *prefs.Store
	if !*noPrefs {
		path := *prefsPath
		if path == "" {
			if path, err = prefs.DefaultPath(); err != nil {
				logger.Warn("no preferences location", "err", err)
			}
		}
		if path != "" {
			store = prefs.Open(path, prefs.WithLogger(logger))
			saved := store.Get()
			opts = append(opts, justchord.WithReferenceFrequency(saved.ReferenceFrequency), justchord.WithRootPitch(saved.RootPitch))
		}
	}

	pl, err := justchord.NewPlayer(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer pl.Close()
	if store != nil {
		defer func() {
			if err := store.Flush(); err != nil {
				logger.Warn("saving preferences failed", "err", err)
			}
		}()
	}

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(windowW, windowH, -1, -1)
	ebiten.SetWindowTitle("justchord")
	if err := ebiten.RunGame(newGame(pl, store)); err != nil {
		log.Fatal(err)
	}
}
