// Command pengystream runs the transcode coordination daemon and the
// operator utilities around it: one-shot sweeps, classification dry runs,
// status queries against the running daemon, and configuration helpers.
package main
