// Package webhook authenticates inbound webhook bodies.
//
// Senders sign the exact request bytes with HMAC-SHA256 under a shared secret
// and send the hex digest in the X-Signature header. Verification happens on
// the raw body before any JSON parsing, so re-encoding on either side breaks
// the signature.
//
//	sig := webhook.Sign(secret, body)
//	ok := webhook.Verify(secret, body, sig)
package webhook
