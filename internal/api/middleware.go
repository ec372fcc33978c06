package api

import (
	"bytes"
	"io"
	"net/http"

	"raffleengine/internal/blockchain"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
)

const (
	SignerHeader    = "X-Raffle-Signer"
	SignatureHeader = "X-Raffle-Signature"

	callerKey = "caller"

	maxBodySize = 1 << 20
)

// SignerMiddleware authenticates the caller by an ed25519 signature over
// the raw request body.
func SignerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		signer, err := blockchain.AddressFromBase58(c.GetHeader(SignerHeader))
		if err != nil {
			abort(c, http.StatusUnauthorized, "MissingSigner")
			return
		}

		signature, err := solana.SignatureFromBase58(c.GetHeader(SignatureHeader))
		if err != nil {
			abort(c, http.StatusUnauthorized, "MissingSignature")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize+1))
		if err != nil {
			abort(c, http.StatusBadRequest, "UnreadableBody")
			return
		}
		if len(body) > maxBodySize {
			abort(c, http.StatusRequestEntityTooLarge, "BodyTooLarge")
			return
		}

		if !signature.Verify(signer.PublicKey(), body) {
			abort(c, http.StatusUnauthorized, "BadSignature")
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(callerKey, signer)
		c.Next()
	}
}

// Sign produces the headers SignerMiddleware expects for body.
func Sign(key solana.PrivateKey, body []byte) (http.Header, error) {
	signature, err := key.Sign(body)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(SignerHeader, key.PublicKey().String())
	header.Set(SignatureHeader, signature.String())
	return header, nil
}

func caller(c *gin.Context) blockchain.Address {
	return c.MustGet(callerKey).(blockchain.Address)
}

func abort(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
