package model

// Website is a registered domain and the shared secret that proves a caller
// may act for it. Rows are managed outside this service.
type Website struct {
	Domain string
	Secret string
}
