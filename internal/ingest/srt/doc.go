// Package srt implements SRT (Secure Reliable Transport) acquisition of a
// transport stream, either by dialing a remote listener (caller mode) or
// by accepting publishers on a local port (listener mode).
package srt
