package paradex

// AuthResponse is the body returned by the auth endpoint.
type AuthResponse struct {
	JWTToken  string `json:"jwt_token"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

// Headers attached to signed REST requests.
const (
	HeaderEthereumAccount     = "PARADEX-ETHEREUM-ACCOUNT"
	HeaderStarknetAccount     = "PARADEX-STARKNET-ACCOUNT"
	HeaderStarknetSignature   = "PARADEX-STARKNET-SIGNATURE"
	HeaderTimestamp           = "PARADEX-TIMESTAMP"
	HeaderSignatureExpiration = "PARADEX-SIGNATURE-EXPIRATION"
)
