package registry

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openphotolib/photolib/internal/auth/domain"
)

// clientConfig mirrors one entry of the clients YAML file:
//
//	clients:
//	  - name: Frontend
//	    client_id: 1b1fa37b-...
//	    client_secret: super-secret
//	    redirect_uris:
//	      - http://127.0.0.1:7777/callback
type clientConfig struct {
	Name         string   `koanf:"name"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURIs []string `koanf:"redirect_uris"`
}

type clientsFile struct {
	Clients []clientConfig `koanf:"clients"`
}

// LoadFile reads the clients YAML file at path and returns a populated
// registry. Duplicate client IDs in the file are an error.
func LoadFile(path string) (*Registry, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("registry: read clients file %s: %w", path, err)
	}

	var cfg clientsFile
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("registry: parse clients file %s: %w", path, err)
	}

	r := New()
	for _, c := range cfg.Clients {
		if err := r.Register(domain.Client{
			ID:           c.ClientID,
			Name:         c.Name,
			Secret:       c.ClientSecret,
			RedirectURIs: c.RedirectURIs,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}
