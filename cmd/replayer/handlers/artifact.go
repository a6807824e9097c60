package handlers

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/storage"
)

const artifactTokenName = "artifact"

// ErrInvalidArtifactToken is returned for a token that fails verification.
var ErrInvalidArtifactToken = errors.New("invalid artifact token")

// ArtifactLinks signs artifact paths into opaque tokens and serves them back.
type ArtifactLinks struct {
	codec   *securecookie.SecureCookie
	storage storage.BlobStorage
	logger  logger.Logger
}

// NewArtifactLinks creates an artifact link signer. Tokens are signed and
// encrypted with keys derived from secret. An empty secret uses random keys,
// so links only survive as long as the process. Tokens expire after maxAge;
// zero means they never expire.
func NewArtifactLinks(secret string, maxAge time.Duration, store storage.BlobStorage, log logger.Logger) *ArtifactLinks {
	hashKey, blockKey := deriveLinkKeys(secret)
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge / time.Second))
	return &ArtifactLinks{
		codec:   codec,
		storage: store,
		logger:  log,
	}
}

// deriveLinkKeys expands secret into a 32 byte HMAC key and a 32 byte AES key.
func deriveLinkKeys(secret string) (hashKey, blockKey []byte) {
	if secret == "" {
		return securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("ui-replay artifact links"))
	hashKey = make([]byte, 32)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		panic(err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		panic(err)
	}
	return hashKey, blockKey
}

// Sign returns a token naming the artifact at p.
func (a *ArtifactLinks) Sign(p string) (string, error) {
	token, err := a.codec.Encode(artifactTokenName, p)
	if err != nil {
		return "", fmt.Errorf("failed to sign artifact link: %w", err)
	}
	return token, nil
}

// Verify returns the artifact path named by token.
func (a *ArtifactLinks) Verify(token string) (string, error) {
	var p string
	if err := a.codec.Decode(artifactTokenName, token, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArtifactToken, err)
	}
	return p, nil
}

// Download streams the artifact named by the {token} path parameter.
func (a *ArtifactLinks) Download(w http.ResponseWriter, r *http.Request) {
	p, err := a.Verify(mux.Vars(r)["token"])
	if err != nil {
		respondError(w, http.StatusForbidden, "invalid or expired artifact link")
		return
	}

	reader, err := a.storage.Download(r.Context(), p)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			respondError(w, http.StatusNotFound, "artifact not found")
			return
		}
		a.logger.Error(r.Context(), "failed to download artifact", map[string]interface{}{
			"error": err.Error(),
			"path":  p,
		})
		respondError(w, http.StatusInternalServerError, "failed to download artifact")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", storage.ContentType(p))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(p)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		a.logger.Error(r.Context(), "failed to stream artifact", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
