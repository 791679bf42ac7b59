// Package log provides a small leveled logging layer for ragserve.
//
// A Logger carries printf-style Debug/Info/Warn/Error methods. The package ships
// a stdlib-backed DefaultLogger, a NoOpLogger, and a wrapper around
// github.com/kataras/golog for users who want colored, leveled terminal output.
// A package-level logger keeps call sites short:
//
//	log.Info("session %s: %d evidence items", id, len(items))
//
// Swap the package-level logger at startup:
//
//	log.SetDefaultLogger(log.NewGologLogger(golog.Default))
package log
