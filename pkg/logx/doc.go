// Package logx is postsched's structured logger: zerolog underneath, a
// readable console format on stderr and an optional JSON log file, both
// swappable at runtime through Service.Apply.
package logx
