/*
Package packet implements the secureudp wire frame.

Each frame carries one independently sealed message and has the following
structure:

    offset 0   : sequence number      (4 bytes)
    offset 4   : timestamp_ms         (8 bytes)
    offset 12  : nonce                (12 bytes)
    offset 24  : ciphertext           (N bytes)
    offset 24+N: authentication tag   (16 bytes)

Multi-byte integers are little-endian. N is derived from the datagram length
(N = len - 40), so the smallest valid frame is 40 bytes. Nothing in the frame
is checked here beyond its length; the tag is verified by the cipher suite.

Acknowledgments travel in the same layout. The sealed payload of an ack frame
is the 4-byte little-endian sequence number being acknowledged, and the
frame's own sequence field repeats it. Ack frames are sealed under a key
derived from the shared key (see cipher.AckKey), so an ack never
authenticates as a data frame and a data frame never authenticates as an
ack. No type byte is added to the frame.
*/
package packet
