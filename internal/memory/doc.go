// Package memory samples process heap usage and adapts the streaming chunk
// size so analysis runs in bounded memory regardless of input size.
package memory
