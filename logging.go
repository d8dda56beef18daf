package vcdleak

import "github.com/sirupsen/logrus"

var _lg = logrus.New()

// SetLogger replaces the package-level logger used for coarse per-file
// lifecycle events (header phase complete, parse failed). It is never
// called from the per-value-change hot loop.
func SetLogger(lg *logrus.Logger) {
	_lg = lg
}
