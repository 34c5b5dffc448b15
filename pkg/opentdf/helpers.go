package opentdf

import (
	"context"
	"fmt"
	"io"

	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

// maxHeaderSize bounds everything outside the payload: two locators, an
// embedded policy, keys and a signature.
const maxHeaderSize = 1 << 17

// readLimited reads all of src, failing if it exceeds limit bytes.
func readLimited(src io.Reader, limit int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: input exceeds %d bytes", ErrPayloadTooLarge, limit)
	}
	return data, nil
}

// EncryptReader encrypts everything read from src.
func (c *Client) EncryptReader(ctx context.Context, policyAttributes, dissems []string, src io.Reader, kasURL string) ([]byte, error) {
	plaintext, err := readLimited(src, nanotdf.MaxPayloadSize)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(ctx, policyAttributes, dissems, plaintext, kasURL)
}

// EncryptTo encrypts everything read from src and writes the envelope to dst.
func (c *Client) EncryptTo(ctx context.Context, dst io.Writer, src io.Reader, policyAttributes, dissems []string, kasURL string) error {
	out, err := c.EncryptReader(ctx, policyAttributes, dissems, src, kasURL)
	if err != nil {
		return err
	}
	_, err = dst.Write(out)
	return err
}

// DecryptTo decrypts the envelope read from src and writes the plaintext to
// dst. Nothing is written on failure.
func (c *Client) DecryptTo(ctx context.Context, dst io.Writer, src io.Reader, kasURL string) error {
	data, err := readLimited(src, nanotdf.MaxPayloadSize+maxHeaderSize)
	if err != nil {
		return err
	}
	plaintext, err := c.Decrypt(ctx, data, kasURL)
	if err != nil {
		return err
	}
	_, err = dst.Write(plaintext)
	return err
}
