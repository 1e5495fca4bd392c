// Package matcher implements the trusted-matchmaker side of netcode: minting
// public/private connect token pairs for a client to present to a server, per
// §5. It is the one component not run by the server or client state
// machines themselves — whatever application glues the two sides together
// calls it directly.
package matcher

import (
	"crypto/rand"
	"fmt"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/token"
)

// Params describes one connect token to mint.
type Params struct {
	ProtocolID      uint64
	PrivateKey      [codec.KeyBytes]byte
	ClientID        uint64
	ServerAddrs     []addr.Address
	TimeoutSecond   int32
	ExpirySeconds   uint64
	CreateTimestamp uint64
	UserData        [codec.UserDataBytes]byte
}

// Mint generates fresh client/server keys and a fresh nonce, seals a private
// connect-token section, and wraps it in a public connect token ready to
// hand to a client out of band.
func Mint(p Params) (token.PublicConnectToken, error) {
	if len(p.ServerAddrs) < 1 || len(p.ServerAddrs) > codec.MaxServersPerConnect {
		return token.PublicConnectToken{}, fmt.Errorf("matcher: server address count %d out of range", len(p.ServerAddrs))
	}

	var clientKey, serverKey [codec.KeyBytes]byte
	if _, err := rand.Read(clientKey[:]); err != nil {
		return token.PublicConnectToken{}, fmt.Errorf("matcher: generating client key: %w", err)
	}
	if _, err := rand.Read(serverKey[:]); err != nil {
		return token.PublicConnectToken{}, fmt.Errorf("matcher: generating server key: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return token.PublicConnectToken{}, fmt.Errorf("matcher: generating nonce: %w", err)
	}

	priv := token.ConnectTokenPrivate{
		ClientID:      p.ClientID,
		TimeoutSecond: p.TimeoutSecond,
		ServerAddrs:   p.ServerAddrs,
		ClientKey:     clientKey,
		ServerKey:     serverKey,
		UserData:      p.UserData,
	}

	expire := p.CreateTimestamp + p.ExpirySeconds

	return token.NewPublicConnectToken(priv, p.PrivateKey, p.ProtocolID, p.CreateTimestamp, expire, nonce)
}
