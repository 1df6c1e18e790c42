package models

// Chunk is one encrypted piece of a listing's content.
type Chunk struct {
	ListingID int64
	// Index is 0-based and contiguous within a listing.
	Index int
	// Payload is nonce||ciphertext.
	Payload []byte
	// Hash is the SHA-256 digest of the plaintext chunk.
	Hash []byte
}
