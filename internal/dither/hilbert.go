package dither

import (
	"image"
	"iter"
)

type direction int

const (
	dirNone direction = iota
	dirLeft
	dirRight
	dirUp
	dirDown
)

// HilbertCurve yields the points of a Hilbert curve starting at the origin
// and covering the smallest power-of-two square that contains
// width×height. Points outside width×height are yielded too; callers skip
// them.
func HilbertCurve(width, height int) iter.Seq[image.Point] {
	return func(yield func(image.Point) bool) {
		side := max(width, height)
		level := 0
		for 1<<level < side {
			level++
		}
		w := &hilbertWalker{yield: yield}
		if level > 0 {
			w.walk(level, dirUp)
		}
		w.move(dirNone)
	}
}

type hilbertWalker struct {
	x, y    int
	yield   func(image.Point) bool
	stopped bool
}

func (w *hilbertWalker) move(dir direction) {
	if w.stopped {
		return
	}
	if !w.yield(image.Pt(w.x, w.y)) {
		w.stopped = true
		return
	}
	switch dir {
	case dirLeft:
		w.x--
	case dirRight:
		w.x++
	case dirUp:
		w.y--
	case dirDown:
		w.y++
	}
}

func (w *hilbertWalker) walk(level int, dir direction) {
	if w.stopped {
		return
	}
	if level == 1 {
		switch dir {
		case dirLeft:
			w.move(dirRight)
			w.move(dirDown)
			w.move(dirLeft)
		case dirRight:
			w.move(dirLeft)
			w.move(dirUp)
			w.move(dirRight)
		case dirUp:
			w.move(dirDown)
			w.move(dirRight)
			w.move(dirUp)
		case dirDown:
			w.move(dirUp)
			w.move(dirLeft)
			w.move(dirDown)
		}
		return
	}
	switch dir {
	case dirLeft:
		w.walk(level-1, dirUp)
		w.move(dirRight)
		w.walk(level-1, dirLeft)
		w.move(dirDown)
		w.walk(level-1, dirLeft)
		w.move(dirLeft)
		w.walk(level-1, dirDown)
	case dirRight:
		w.walk(level-1, dirDown)
		w.move(dirLeft)
		w.walk(level-1, dirRight)
		w.move(dirUp)
		w.walk(level-1, dirRight)
		w.move(dirRight)
		w.walk(level-1, dirUp)
	case dirUp:
		w.walk(level-1, dirLeft)
		w.move(dirDown)
		w.walk(level-1, dirUp)
		w.move(dirRight)
		w.walk(level-1, dirUp)
		w.move(dirUp)
		w.walk(level-1, dirRight)
	case dirDown:
		w.walk(level-1, dirRight)
		w.move(dirUp)
		w.walk(level-1, dirDown)
		w.move(dirLeft)
		w.walk(level-1, dirDown)
		w.move(dirDown)
		w.walk(level-1, dirLeft)
	}
}
