package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Auth signs private REST requests the GDAX/Coinbase-style way: HMAC-SHA256
// over "timestamp + method + path + body", base64 encoded, with the API
// secret as key. There is no on-chain signing in this domain — this is a
// centralized exchange private API, not a wallet.
type Auth struct {
	apiKey     string
	secret     string
	passphrase string
}

// NewAuth builds an Auth from the configured API credentials.
func NewAuth(apiKey, secret, passphrase string) *Auth {
	return &Auth{apiKey: apiKey, secret: secret, passphrase: passphrase}
}

// HasCredentials reports whether API credentials are configured. Book reads
// don't need them; every mutating call does.
func (a *Auth) HasCredentials() bool {
	return a.apiKey != "" && a.secret != ""
}

// Headers produces the signed header set for a private request.
func (a *Auth) Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.sign(timestamp, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"CB-ACCESS-KEY":        a.apiKey,
		"CB-ACCESS-SIGN":       sig,
		"CB-ACCESS-TIMESTAMP":  timestamp,
		"CB-ACCESS-PASSPHRASE": a.passphrase,
	}, nil
}

func (a *Auth) sign(timestamp, method, path, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(a.secret)
	if err != nil {
		// Some venues issue plain (non-base64) secrets; fall back to raw bytes.
		key = []byte(a.secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
