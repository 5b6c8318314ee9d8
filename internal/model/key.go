package model

type (
	// KeyRecord is the directory entry for one identity. A later
	// registration for the same identity replaces it.
	KeyRecord struct {
		Identity  string `json:"userId" bson:"identity"`
		PublicKey []byte `json:"publicKey" bson:"public_key"`
	}

	// KeyPair never leaves the client that generated it.
	KeyPair struct {
		PublicKey  [32]byte
		PrivateKey [32]byte
	}

	RegisterKeyRequest struct {
		Identity  string `json:"userId"`
		PublicKey string `json:"publicKey"`
	}

	KeyResponse struct {
		Identity  string `json:"userId"`
		PublicKey string `json:"publicKey"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)
