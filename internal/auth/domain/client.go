package domain

// Client is a registered OAuth2 client. Clients come from the deployment's
// configuration file, not the database, so the set is fixed for the
// lifetime of the process.
type Client struct {
	ID           string
	Name         string
	Secret       string
	RedirectURIs []string
}
