// Package logs reads the daemon log for `pengystream logs`.
//
// Tail returns the last lines of a file with bounded memory. Follow streams
// lines appended afterwards and switches files when the pengystream.log
// pointer is relinked to a new run.
package logs
