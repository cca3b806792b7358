// Package auth carries caller identity for the permission cache service.
//
// End users are authenticated by a JWT layer in front of this service, which
// stores the verified subject in an AuthContext on the request context. The
// authorization interceptor reads that subject when no trusted user id header
// is present.
//
// Internal callers (the login flow, role administration) authenticate with
// service tokens:
//
//	token, hash, prefix, _ := auth.NewTokenGenerator().GenerateToken()
//	// token: pcs_<base64url(32 random bytes)>, handed to the caller once
//	// hash:  SHA256 hex, placed in server.internal_token_hashes
//
//	verifier, _ := auth.NewTokenVerifier(cfg.Server.InternalTokenHashes)
//	if err := verifier.Verify(token); err != nil {
//		// 401
//	}
package auth
