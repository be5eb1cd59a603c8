// Package auth provides optional agent authentication for the collector.
//
// Agents present an HS256 JWT as "authorization: Bearer <token>" metadata.
// The token's sub claim must equal the agent id in the agent header, so a
// token issued to one agent cannot report as another.
//
// # Server Side
//
// Chain the interceptors after the header interceptors:
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	grpc.ChainUnaryInterceptor(
//	    header.UnaryServerInterceptor(logger),
//	    auth.UnaryServerInterceptor(verifier, logger),
//	)
//
// A missing or invalid token fails with Unauthenticated; a token for a
// different agent fails with PermissionDenied. Health checks are exempt.
//
// # Client Side
//
// UnaryClientInterceptor and StreamClientInterceptor attach a token to every
// call. channel.GRPCOptions.Token installs them.
package auth
