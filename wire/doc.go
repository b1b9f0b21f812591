// Package wire implements the byte-level client/server protocol the embedded
// engine speaks: framing, message encoding and incremental decoding.
//
// Every frame is a one-byte kind tag followed by a 4-byte big-endian length;
// the length covers itself and the payload but not the tag. The initial
// startup, SSL-negotiation and cancel requests use length-only framing with
// no tag, per protocol convention.
//
// The Decoder turns an arbitrarily fragmented byte stream into Message
// values, preserving partial trailing frames between calls. The Writer
// produces exact wire bytes for every outbound request kind over a single
// reusable growable buffer.
package wire
