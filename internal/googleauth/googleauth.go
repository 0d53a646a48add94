// Package googleauth loads Google OAuth client credentials and the cached user
// token shared by the captions source and the Drive archive.
package googleauth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when the token file has not been created yet.
// Run cmd/authorize to create it.
var ErrNoToken = errors.New("google oauth token not found")

// LoadConfig reads an OAuth client credentials file
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// Client returns an HTTP client authorized with the cached token. Expired
// access tokens are refreshed transparently.
func Client(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (*http.Client, error) {
	config, err := LoadConfig(credentialsFile, scopes...)
	if err != nil {
		return nil, err
	}

	tok, err := TokenFromFile(tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, tokenFile)
		}
		return nil, err
	}
	return config.Client(ctx, tok), nil
}

// TokenFromWeb runs the interactive consent flow: it prints the auth URL to out
// and reads the authorization code from in.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser:\n%v\n", authURL)
	fmt.Fprint(out, "Enter authorization code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// TokenFromFile retrieves a token from a local file
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token file: %w", err)
	}
	return tok, nil
}

// SaveToken saves a token to a file path
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
