// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"context"
	"crypto/sha1"
	"encoding/base32"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zeebo/bencode"
)

// HashDeriver resolves a magnet URI or .torrent URL to its info-hash.
type HashDeriver struct {
	http *http.Client
}

func NewHashDeriver() *HashDeriver {
	return &HashDeriver{http: &http.Client{Timeout: 60 * time.Second}}
}

type torrentFile struct {
	Info bencode.RawMessage `bencode:"info"`
}

// Derive returns the 40-char lowercase hex info-hash. Magnets are
// decoded in place; anything else is fetched and hashed from its
// bencoded info dictionary.
func (d *HashDeriver) Derive(ctx context.Context, rawURL string) (string, error) {
	if btih, ok := magnetInfoHash(rawURL); ok {
		if len(btih) <= 32 {
			decoded, err := decodeBase32(btih)
			if err != nil {
				return "", errors.Wrap(err, "decode base32 info-hash")
			}
			return hex.EncodeToString(decoded), nil
		}
		return strings.ToLower(btih), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "build torrent request")
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetch torrent")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetch torrent %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read torrent body")
	}

	var tf torrentFile
	if err := bencode.DecodeBytes(body, &tf); err != nil {
		return "", errors.Wrap(err, "decode torrent")
	}
	if len(tf.Info) == 0 {
		return "", errors.New("torrent has no info dictionary")
	}

	// RawMessage holds the info dict exactly as bencoded, which is the
	// canonical form the info-hash is defined over.
	sum := sha1.Sum(tf.Info)
	return hex.EncodeToString(sum[:]), nil
}

// magnetInfoHash extracts the urn:btih suffix from a magnet URI.
func magnetInfoHash(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "magnet" {
		return "", false
	}
	for _, xt := range u.Query()["xt"] {
		if hash, ok := strings.CutPrefix(xt, "urn:btih:"); ok && hash != "" {
			return hash, true
		}
	}
	return "", false
}

// decodeBase32 accepts RFC 4648 input with or without padding.
func decodeBase32(s string) ([]byte, error) {
	s = strings.ToUpper(s)
	if m := len(s) % 8; m != 0 {
		s += strings.Repeat("=", 8-m)
	}
	return base32.StdEncoding.DecodeString(s)
}
