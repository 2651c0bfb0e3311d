// Package crypto provides the signing capability used by channel clients and
// the signature verification used by the provider's ledger.
//
// Vouchers are signed the way Ethereum wallets sign personal messages: the
// 32-byte voucher hash is prefixed with "\x19Ethereum Signed Message:\n32",
// hashed again with keccak256 and signed with secp256k1. The resulting 65-byte
// signature is laid out as R || S || V with V in {27, 28}. Verification
// recovers the public key from the signature and compares the derived address
// with the channel's client address.
package crypto
