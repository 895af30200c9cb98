// Package uploadlog implements a per-route in-memory log buffer for
// GPX uploads.
//
// Details are buffered while a file is being processed.  If the upload
// fails, the buffer is replayed followed by the final error, so the log
// shows the whole story of exactly the upload that broke.  If it
// succeeds, the buffer is dropped and one short line is printed.
//
// Thread safety comes from a dedicated goroutine draining a command
// channel; there are no mutexes.
package uploadlog

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act      action
	routeID  int64
	message  string // for Append
	filename string // for Success
	err      error  // for FlushError
	when     time.Time
}

var ch = make(chan cmd, 128) // headroom for upload bursts

// Begin starts buffering for one route's upload.
func Begin(routeID int64) { ch <- cmd{act: actBegin, routeID: routeID, when: time.Now()} }

// Append adds one detail line to the route's buffer.  Formatting
// happens in the caller's goroutine so the drain loop stays trivial.
func Append(routeID int64, format string, args ...any) {
	ch <- cmd{act: actAppend, routeID: routeID, message: fmt.Sprintf(format, args...), when: time.Now()}
}

// Success drops the buffer and prints a single short line.
func Success(routeID int64, filename string) {
	ch <- cmd{act: actSuccess, routeID: routeID, filename: filename, when: time.Now()}
}

// FlushError replays the buffered lines and then the final error.
func FlushError(routeID int64, err error) {
	ch <- cmd{act: actFlushErr, routeID: routeID, err: err, when: time.Now()}
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[int64]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.routeID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.routeID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer, log straight away
			}

		case actSuccess:
			log.Printf("[route %d][upload] processed %q", c.routeID, c.filename)
			delete(buffers, c.routeID)

		case actFlushErr:
			if b := buffers[c.routeID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.routeID)
			}
			log.Printf("[route %d][upload] ERROR %v", c.routeID, c.err)
		}
	}
}
