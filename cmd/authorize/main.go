// Command authorize runs the Google OAuth consent flow once and caches the
// token used by the captions source and the Drive archive.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/youtube/v3"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/googleauth"
)

func main() {
	credentialsFile := flag.String("credentials", "credentials.json", "OAuth client credentials file")
	tokenFile := flag.String("token", "token.json", "where to write the token")
	flag.Parse()

	config, err := googleauth.LoadConfig(*credentialsFile, youtube.YoutubeForceSslScope, drive.DriveFileScope)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	tok, err := googleauth.TokenFromWeb(context.Background(), config, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}

	if err := googleauth.SaveToken(*tokenFile, tok); err != nil {
		log.Fatalf("Failed to save token: %v", err)
	}
	log.Printf("Token saved to %s", *tokenFile)
}
