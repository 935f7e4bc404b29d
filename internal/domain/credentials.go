package domain

// Credentials venue API key pair. A nil *Credentials means public access only.
type Credentials struct {
	Key    string
	Secret string
}

// Valid reports whether both parts are set.
func (c *Credentials) Valid() bool {
	return c != nil && c.Key != "" && c.Secret != ""
}
