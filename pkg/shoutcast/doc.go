// Package shoutcast provides ICY/Shoutcast stream access.
//
// It is a fork of github.com/romantomjak/shoutcast, reworked around a push
// style demultiplexer:
//   - Demuxer splits a raw interleaved body into audio and metadata blocks, whatever the chunk boundaries
//   - Metadata parses StreamTitle and friends out of a metadata block
//   - Open resolves .pls and .m3u playlists and connects without a client timeout so long-running recording is supported
package shoutcast
