package models

// Principal is the verified caller of one request. It is passed explicitly down the call chain.
type Principal struct {
	Subject string
	Issuer  string
}
