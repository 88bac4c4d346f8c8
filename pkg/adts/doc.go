// Package adts reassembles AAC audio carried in ADTS frames.
//
// An ADTS frame starts with a 7 byte header (9 with CRC) holding a 12 bit
// sync word and the 13 bit length of the whole frame. The Reassembler turns
// an arbitrarily cut byte stream into batches of complete frames that can be
// appended to a decoder buffer as is.
package adts
