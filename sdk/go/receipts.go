package capgate

import "context"

// EncodeReceiptBlobResponse pairs a receipt with its base64 canonical blob.
type EncodeReceiptBlobResponse struct {
	Receipt Receipt `json:"receipt"`
	Blob    string  `json:"blob"`
}

// EncodeReceiptBlob asks the gateway to re-encode a receipt as a portable
// base64 blob, e.g. for attaching to a downstream audit record.
func (c *Client) EncodeReceiptBlob(ctx context.Context, receipt *Receipt) (*EncodeReceiptBlobResponse, error) {
	var result EncodeReceiptBlobResponse
	if err := c.request(ctx, "POST", "/v1/receipts/encode", receipt, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyReceiptRequest accepts either a base64 blob or a raw receipt, plus
// optional original inputs/outputs for a content-hash recheck.
type VerifyReceiptRequest struct {
	Blob    string                 `json:"blob,omitempty"`
	Receipt *Receipt               `json:"receipt,omitempty"`
	Inputs  map[string]interface{} `json:"inputs,omitempty"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// VerifyReceiptResponse reports whether the signature and content hashes
// hold up.
type VerifyReceiptResponse struct {
	ReceiptID        string `json:"receipt_id"`
	SignatureValid   bool   `json:"signature_valid"`
	ContentHashMatch bool   `json:"content_hash_match"`
}

// VerifyReceipt checks a receipt's signature and, if inputs/outputs are
// supplied, recomputes their content hashes against the receipt's recorded
// hashes.
func (c *Client) VerifyReceipt(ctx context.Context, req *VerifyReceiptRequest) (*VerifyReceiptResponse, error) {
	var result VerifyReceiptResponse
	if err := c.request(ctx, "POST", "/v1/receipts/verify", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
