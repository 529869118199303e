package transport

import (
	"fmt"
	"net/http"
	"os"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/protocol"
)

// ApplyAuth sets request headers or query parameters per the manifest's
// Auth configuration, reading the credential from the named environment
// variable. It never logs or returns the credential value itself.
func ApplyAuth(req *http.Request, auth protocol.Auth) error {
	for _, h := range auth.ExtraHeaders {
		req.Header.Set(h.Name, h.Value)
	}

	switch auth.Type {
	case "", "none":
		return nil
	case "bearer":
		token, err := lookupEnv(auth.TokenEnv)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "api_key_header":
		key, err := lookupEnv(auth.KeyEnv)
		if err != nil {
			return err
		}
		name := auth.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		req.Header.Set(name, key)
	case "api_key_query":
		key, err := lookupEnv(auth.KeyEnv)
		if err != nil {
			return err
		}
		name := auth.ParamName
		if name == "" {
			name = "key"
		}
		q := req.URL.Query()
		q.Set(name, key)
		req.URL.RawQuery = q.Encode()
	default:
		return aiproto.New(aiproto.KindConfiguration, fmt.Sprintf("transport: unsupported auth type %q", auth.Type))
	}
	return nil
}

func lookupEnv(name string) (string, error) {
	if name == "" {
		return "", aiproto.New(aiproto.KindConfiguration, "transport: auth requires an environment variable name")
	}
	v := os.Getenv(name)
	if v == "" {
		return "", aiproto.New(aiproto.KindConfiguration, fmt.Sprintf("transport: environment variable %q is not set", name))
	}
	return v, nil
}
