//go:generate go run go.uber.org/mock/mockgen -source=cipher_iface.go -destination=../mocks/mock_cipher.go -package=mocks
package core

// Cipher encrypts message bodies at the persistence boundary.
// Decrypt must fail on malformed or tampered input.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
