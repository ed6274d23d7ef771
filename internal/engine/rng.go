package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// byteStream produces HMAC-SHA256 output as an endless byte stream.
// Each 32-byte block is HMAC(serverSeed, "clientSeed:nonce:round").
type byteStream struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	block      [32]byte
}

func newByteStream(serverSeed, clientSeed string, nonce uint64) *byteStream {
	bs := &byteStream{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
	bs.fill()
	return bs
}

func (bs *byteStream) next() byte {
	if bs.pos >= len(bs.block) {
		bs.round++
		bs.pos = 0
		bs.fill()
	}
	b := bs.block[bs.pos]
	bs.pos++
	return b
}

// nextFloat consumes 4 bytes and maps them into [0, 1).
func (bs *byteStream) nextFloat() float64 {
	result := 0.0
	divider := 1.0
	for i := 0; i < 4; i++ {
		divider *= 256
		result += float64(bs.next()) / divider
	}
	return result
}

func (bs *byteStream) fill() {
	h := hmac.New(sha256.New, []byte(bs.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", bs.clientSeed, bs.nonce, bs.round)
	copy(bs.block[:], h.Sum(nil))
}

// Float returns the first float of the stream for (serverSeed, clientSeed, nonce).
func Float(serverSeed, clientSeed string, nonce uint64) float64 {
	return newByteStream(serverSeed, clientSeed, nonce).nextFloat()
}
